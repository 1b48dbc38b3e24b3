// Package counting turns per-frame detections into a debounced object count,
// picks a random subset of counted objects for manual review, and drives the
// review alarm.
//
// All state lives in an Engine. Its methods are serialised by one mutex, so a
// driver loop, HTTP handlers and a serial button listener may call it from
// different goroutines.
package counting

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cbf-labs/anacase/internal/actuator"
	"github.com/cbf-labs/anacase/internal/monitoring"
)

// Config holds the validated engine parameters.
type Config struct {
	Beam             Beam
	MinInterval      time.Duration
	ArmTimeout       time.Duration
	LoopSample       int
	PercentageSample float64
	ReviewTimeout    time.Duration
	GreenHold        time.Duration
	RedHold          time.Duration

	// Rand drives sample selection. Nil uses a fixed seed.
	Rand *rand.Rand
	// NewReviewID overrides review id generation in tests.
	NewReviewID func() string
}

// Mode is the operator display mode. It does not affect counting.
type Mode string

const (
	ModeRun  Mode = "RUN"
	ModeView Mode = "VIEW"
)

// Snapshot is the status published after every cycle.
type Snapshot struct {
	Time time.Time `json:"time"`
	Stats

	Modulus        int          `json:"modulus"`
	Generation     uint64       `json:"generation"`
	PendingSamples int          `json:"pending_samples"`
	State          string       `json:"state"`
	AlarmActive    bool         `json:"alarm_active"`
	Review         *ReviewEvent `json:"review,omitempty"`

	Opened       uint64 `json:"reviews_opened"`
	Acknowledged uint64 `json:"reviews_acknowledged"`
	TimedOut     uint64 `json:"reviews_timed_out"`
	Deferred     uint64 `json:"reviews_deferred"`

	Armed            bool   `json:"armed"`
	Crossed          bool   `json:"crossed"`
	Skipped          uint64 `json:"skipped_detections"`
	Suppressed       uint64 `json:"suppressed_crossings"`
	ActuatorFailures uint64 `json:"actuator_failures"`
	DroppedEvents    uint64 `json:"dropped_events"`

	Outputs   actuator.Outputs `json:"outputs"`
	Mode      Mode             `json:"mode"`
	StatsPage bool             `json:"stats_page"`
}

// Engine owns the detector, counter, sample set, review controller and
// history, and applies actuator outputs once per cycle.
type Engine struct {
	mu sync.Mutex

	detector *CrossingDetector
	samples  *SampleSet
	counter  *Counter
	review   *ReviewController
	history  *HistoryLog
	stats    *StatsReporter
	signals  *actuator.Signals
	sink     actuator.Sink

	outputs          actuator.Outputs
	actuatorFailing  bool
	actuatorFailures uint64
	crossed          bool

	mode      Mode
	statsPage bool

	subscribers   map[string]chan Event
	droppedEvents uint64
	closed        bool
}

// New validates cfg and builds an Engine writing to sink. A nil sink is
// replaced with actuator.NoopSink.
func New(cfg Config, sink actuator.Sink) (*Engine, error) {
	if cfg.GreenHold < 0 {
		return nil, configErr("green hold", cfg.GreenHold, "must be non-negative")
	}
	if cfg.RedHold < 0 {
		return nil, configErr("red hold", cfg.RedHold, "must be non-negative")
	}
	if sink == nil {
		sink = actuator.NoopSink{}
	}

	detector, err := NewCrossingDetector(cfg.Beam, cfg.MinInterval, cfg.ArmTimeout)
	if err != nil {
		return nil, err
	}
	samples, err := NewSampleSet(cfg.LoopSample, cfg.PercentageSample, cfg.Rand)
	if err != nil {
		return nil, err
	}
	counter, err := NewCounter(cfg.LoopSample, samples)
	if err != nil {
		return nil, err
	}
	review, err := NewReviewController(samples, cfg.ReviewTimeout, cfg.NewReviewID)
	if err != nil {
		return nil, err
	}
	history := &HistoryLog{}

	monitoring.Logf("sampling %.1f%% of every %d objects (%d ids drawn)",
		cfg.PercentageSample, cfg.LoopSample, samples.Drawn())
	monitoring.Debugf("sample ids %v", samples.IDs())

	return &Engine{
		detector:    detector,
		samples:     samples,
		counter:     counter,
		review:      review,
		history:     history,
		stats:       NewStatsReporter(history, counter, review),
		signals:     actuator.NewSignals(cfg.GreenHold, cfg.RedHold),
		sink:        sink,
		mode:        ModeRun,
		subscribers: make(map[string]chan Event),
	}, nil
}

// Step runs one processing cycle for frame f. The engine takes ownership of
// f.Snapshot: it is kept if a review opens, otherwise released before Step
// returns.
func (e *Engine) Step(f Frame) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := f.Time
	kept := false

	// Expire a finished review before offering new counts so a sampled object
	// arriving on the timeout boundary opens its own review.
	if rev, ok := e.review.Tick(now); ok {
		monitoring.Logf("⏱️  review %s for object %03d timed out", rev.ID, rev.Count)
		e.publish(Event{Kind: EventReviewClosed, Time: now, Count: rev.Count, ReviewID: rev.ID, Reason: rev.Reason})
	}

	cross, crossed := e.detector.Observe(now, f.Detections)
	e.crossed = crossed
	if crossed {
		kept = e.countLocked(cross, f.Snapshot)
	}
	if !kept {
		release(f.Snapshot)
	}

	e.history.Prune(now)
	e.driveLocked(now, crossed)
	return e.snapshotLocked(now)
}

func (e *Engine) countLocked(cross CrossingEvent, snapshot any) bool {
	now := cross.Time
	count, wrapped := e.counter.Increment()
	e.history.RecordCount(now)
	monitoring.Debugf("new object detected. id=%03d at (%.0f,%.0f)",
		count, cross.Detection.Centroid.X, cross.Detection.Centroid.Y)
	e.publish(Event{Kind: EventCrossing, Time: now, Count: count})

	if wrapped {
		monitoring.Logf("counter wrapped at %d, new sample of %d ids", e.counter.Modulus(), e.samples.Drawn())
		e.publish(Event{Kind: EventSamplesRenewed, Time: now, Generation: e.samples.Generation(), Samples: e.samples.Drawn()})
	}

	outcome, rev := e.review.OnCount(now, count, snapshot)
	switch outcome {
	case OutcomeOpened:
		e.history.RecordReview(now)
		monitoring.Logf("🔴 object %03d selected for review (%s)", count, rev.ID)
		e.publish(Event{Kind: EventReviewOpened, Time: now, Count: count, ReviewID: rev.ID})
		return true
	case OutcomeDeferred:
		monitoring.Logf("⚠️  object %03d selected while a review is open; not reviewed", count)
		e.publish(Event{Kind: EventReviewDeferred, Time: now, Count: count})
	}
	return false
}

func (e *Engine) driveLocked(now time.Time, counted bool) {
	e.outputs = e.signals.Update(now, counted, e.review.State() == ReviewAlarmActive)
	err := actuator.Apply(e.sink, e.outputs)
	if err == nil {
		if e.actuatorFailing {
			monitoring.Logf("✓ actuators responding again")
		}
		e.actuatorFailing = false
		return
	}
	e.actuatorFailures++
	// Log the first failure of a run, not every cycle of it.
	if !e.actuatorFailing {
		monitoring.Logf("❌ Error driving actuators: %v", err)
		e.publish(Event{Kind: EventActuatorFailure, Time: now, Count: e.counter.Count(), Detail: err.Error()})
	}
	e.actuatorFailing = true
}

func release(snapshot any) {
	if r, ok := snapshot.(Releaser); ok {
		r.Release()
	}
}

// Acknowledge clears the active review. It reports whether one was open.
func (e *Engine) Acknowledge(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rev, ok := e.review.Acknowledge(now)
	if !ok {
		return false
	}
	monitoring.Logf("✓ review %s for object %03d acknowledged", rev.ID, rev.Count)
	e.publish(Event{Kind: EventReviewClosed, Time: now, Count: rev.Count, ReviewID: rev.ID, Reason: rev.Reason})
	e.driveLocked(now, false)
	return true
}

// Reset zeroes the counter and draws a new sample set. An open review is left
// to run its course.
func (e *Engine) Reset(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counter.Reset()
	e.detector.Disarm()
	e.history.RestartFirst()
	monitoring.Logf("counter reset by operator, new sample of %d ids", e.samples.Drawn())
	monitoring.Debugf("sample ids %v", e.samples.IDs())
	e.publish(Event{Kind: EventCounterReset, Time: now})
	e.publish(Event{Kind: EventSamplesRenewed, Time: now, Generation: e.samples.Generation(), Samples: e.samples.Drawn()})
}

// SetMode switches the display mode.
func (e *Engine) SetMode(m Mode) error {
	if m != ModeRun && m != ModeView {
		return fmt.Errorf("unknown mode %q", m)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
	return nil
}

// ToggleStats flips the stats page and returns the new setting.
func (e *Engine) ToggleStats() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statsPage = !e.statsPage
	return e.statsPage
}

// Snapshot returns the current status without running a cycle.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(now)
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	s := Snapshot{
		Time:             now,
		Stats:            e.stats.Report(now),
		Modulus:          e.counter.Modulus(),
		Generation:       e.samples.Generation(),
		PendingSamples:   e.samples.Len(),
		State:            e.review.State().String(),
		AlarmActive:      e.review.State() == ReviewAlarmActive,
		Opened:           e.review.Opened(),
		Acknowledged:     e.review.Acknowledged(),
		TimedOut:         e.review.TimedOut(),
		Deferred:         e.review.Deferred(),
		Armed:            e.detector.Armed(),
		Crossed:          e.crossed,
		Skipped:          e.detector.Skipped(),
		Suppressed:       e.detector.Suppressed(),
		ActuatorFailures: e.actuatorFailures,
		DroppedEvents:    e.droppedEvents,
		Outputs:          e.outputs,
		Mode:             e.mode,
		StatsPage:        e.statsPage,
	}
	if rev, ok := e.review.Active(); ok {
		s.Review = &rev
	}
	return s
}

// WithFrozenSnapshot calls fn with the snapshot held by the open review, under
// the engine lock. It reports whether there was one.
func (e *Engine) WithFrozenSnapshot(fn func(any)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.review.FrozenSnapshot()
	if !ok {
		return false
	}
	fn(snap)
	return true
}

// Beam returns the configured counting line.
func (e *Engine) Beam() Beam {
	return e.detector.Beam()
}

// Subscribe returns a channel of engine events. Slow subscribers lose events
// rather than stall the cycle.
func (e *Engine) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return id, ch
	}
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (e *Engine) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		close(ch)
		delete(e.subscribers, id)
	}
}

func (e *Engine) publish(ev Event) {
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			e.droppedEvents++
		}
	}
}

// Shutdown turns every actuator off, drops any open review and closes all
// subscriptions. It is safe to call more than once.
func (e *Engine) Shutdown(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rev, ok := e.review.Abort(now); ok {
		e.publish(Event{Kind: EventReviewClosed, Time: now, Count: rev.Count, ReviewID: rev.ID, Reason: rev.Reason})
	}
	if !e.closed {
		e.closed = true
		for id, ch := range e.subscribers {
			close(ch)
			delete(e.subscribers, id)
		}
	}
	e.signals.Clear()
	e.outputs = actuator.Outputs{}
	if err := e.sink.AllOff(); err != nil {
		return fmt.Errorf("turning actuators off: %w", err)
	}
	return nil
}
