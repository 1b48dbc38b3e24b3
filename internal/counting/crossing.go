package counting

import "time"

// CrossingEvent is one confirmed traversal of the beam.
type CrossingEvent struct {
	Time      time.Time `json:"time"`
	Detection Detection `json:"detection"`
	// Index is the position of the confirming detection in the frame.
	Index int `json:"index"`
}

// CrossingDetector debounces per-frame detections into crossing events.
//
// It keeps one armed flag for the whole beam, not one per object. The flag is
// raised by a detection in the entry band and cleared by the crossing it
// enables. Only the state at the start of a cycle can confirm a crossing in
// that cycle, so an object must be seen on the entry side in an earlier frame.
// When several detections qualify in one cycle the first in input order wins
// and the rest are ignored. Simultaneous objects are therefore counted on a
// best-effort basis. An entry seen in the cycle that confirms a crossing arms
// the detector again for the next object.
//
// The flag expires once nothing has been seen in the entry band or the dead
// zone for longer than the arm timeout, so an object that backs away from the
// beam does not leave it armed for an unrelated exit.
type CrossingDetector struct {
	beam        Beam
	minInterval time.Duration
	armTimeout  time.Duration

	armed    bool
	lastNear time.Time
	last     time.Time
	haveLast bool

	skipped    uint64
	suppressed uint64
}

// DefaultArmTimeout is used when no arm timeout is configured.
const DefaultArmTimeout = 3 * time.Second

// NewCrossingDetector validates beam and returns an unarmed detector. A zero
// armTimeout selects DefaultArmTimeout.
func NewCrossingDetector(beam Beam, minInterval, armTimeout time.Duration) (*CrossingDetector, error) {
	if err := beam.Validate(); err != nil {
		return nil, err
	}
	if minInterval < 0 {
		return nil, configErr("minimum inter-event interval", minInterval, "must be non-negative")
	}
	if armTimeout < 0 {
		return nil, configErr("arm timeout", armTimeout, "must be non-negative")
	}
	if armTimeout == 0 {
		armTimeout = DefaultArmTimeout
	}
	return &CrossingDetector{beam: beam, minInterval: minInterval, armTimeout: armTimeout}, nil
}

// Observe processes the detections of one cycle and reports at most one crossing.
// Detections with degenerate geometry are skipped and counted in Skipped.
func (c *CrossingDetector) Observe(now time.Time, detections []Detection) (CrossingEvent, bool) {
	if c.armed && now.Sub(c.lastNear) > c.armTimeout {
		c.armed = false
	}
	wasArmed := c.armed
	sawEntry, sawNear := false, false

	var ev CrossingEvent
	found := false
	for i, d := range detections {
		if !d.usable() {
			c.skipped++
			continue
		}
		switch c.beam.classify(d.Centroid) {
		case zoneEntry:
			sawEntry = true
		case zoneDead:
			sawNear = true
		case zoneExit:
			if wasArmed && !found {
				ev = CrossingEvent{Time: now, Detection: d, Index: i}
				found = true
			}
		}
	}

	if sawEntry || sawNear {
		c.lastNear = now
	}

	if !found {
		if sawEntry {
			c.armed = true
		}
		return CrossingEvent{}, false
	}

	// The traversal is spent even when the interval suppresses it. The
	// confirming detection is in the exit band, so sawEntry belongs to
	// another object.
	c.armed = sawEntry
	if c.haveLast && now.Sub(c.last) < c.minInterval {
		c.suppressed++
		return CrossingEvent{}, false
	}
	c.last, c.haveLast = now, true
	return ev, true
}

// Armed reports whether an entry has been seen without a matching exit.
func (c *CrossingDetector) Armed() bool { return c.armed }

// Skipped is the number of detections dropped for bad geometry.
func (c *CrossingDetector) Skipped() uint64 { return c.skipped }

// Suppressed is the number of crossings dropped by the minimum interval.
func (c *CrossingDetector) Suppressed() uint64 { return c.suppressed }

// Beam returns the configured counting line.
func (c *CrossingDetector) Beam() Beam { return c.beam }

// Disarm clears the armed flag.
func (c *CrossingDetector) Disarm() { c.armed = false }
