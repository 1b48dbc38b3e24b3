package counting

import (
	"math"
	"time"
)

// Point is an image-space position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box with its origin at the top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one candidate object reported by the vision pipeline for a frame.
type Detection struct {
	Centroid Point   `json:"centroid"`
	BBox     Rect    `json:"bbox"`
	Area     float64 `json:"area"`
}

// usable reports whether the detection has geometry the detector can trust.
func (d Detection) usable() bool {
	if d.BBox.W <= 0 || d.BBox.H <= 0 || d.Area <= 0 {
		return false
	}
	for _, v := range []float64{d.Centroid.X, d.Centroid.Y, d.Area} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Frame is the input for one processing cycle.
type Frame struct {
	Seq        uint64
	Time       time.Time
	Detections []Detection
	// Snapshot is an opaque view of the frame kept while a review is open.
	// If it implements Releaser it is released when the review closes.
	Snapshot any
}

// Releaser is implemented by snapshots that hold pooled resources.
type Releaser interface {
	Release()
}

// Beam is the counting line: the segment A→B plus a dead zone of half-width
// DeadZone on each side. Objects are expected to travel from the right-hand
// side of A→B to its left-hand side (in image coordinates with y pointing
// down and a left-to-right beam, that is top to bottom).
//
// Approach is the depth of the entry and exit bands beyond the dead zone.
// Zero means the same as DeadZone.
type Beam struct {
	A        Point   `json:"a"`
	B        Point   `json:"b"`
	DeadZone float64 `json:"dead_zone"`
	Approach float64 `json:"approach,omitempty"`
}

type zone int

const (
	zoneOutside zone = iota
	zoneEntry
	zoneDead
	zoneExit
)

// Validate checks the beam geometry.
func (b Beam) Validate() error {
	if b.A == b.B {
		return configErr("beam", b, "endpoints must differ")
	}
	if b.DeadZone < 0 || math.IsNaN(b.DeadZone) {
		return configErr("beam dead zone", b.DeadZone, "must be non-negative")
	}
	if b.Approach < 0 || math.IsNaN(b.Approach) {
		return configErr("beam approach", b.Approach, "must be non-negative")
	}
	if b.DeadZone == 0 && b.Approach == 0 {
		return configErr("beam", b, "dead zone and approach cannot both be zero")
	}
	return nil
}

func (b Beam) approach() float64 {
	if b.Approach > 0 {
		return b.Approach
	}
	return b.DeadZone
}

// offset returns the signed perpendicular distance of p from the beam line
// and whether p projects onto the segment.
func (b Beam) offset(p Point) (float64, bool) {
	dx, dy := b.B.X-b.A.X, b.B.Y-b.A.Y
	length2 := dx*dx + dy*dy
	px, py := p.X-b.A.X, p.Y-b.A.Y

	t := (px*dx + py*dy) / length2
	if t < 0 || t > 1 {
		return 0, false
	}
	return (dx*py - dy*px) / math.Sqrt(length2), true
}

func (b Beam) classify(p Point) zone {
	d, ok := b.offset(p)
	if !ok {
		return zoneOutside
	}
	outer := b.DeadZone + b.approach()
	switch {
	case math.Abs(d) <= b.DeadZone:
		return zoneDead
	case d < 0 && d >= -outer:
		return zoneEntry
	case d > 0 && d <= outer:
		return zoneExit
	default:
		return zoneOutside
	}
}
