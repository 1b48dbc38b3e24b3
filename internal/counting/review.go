package counting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReviewState is the state of the review alarm.
type ReviewState int

const (
	ReviewIdle ReviewState = iota
	ReviewAlarmActive
)

func (s ReviewState) String() string {
	switch s {
	case ReviewIdle:
		return "IDLE"
	case ReviewAlarmActive:
		return "ALARM_ACTIVE"
	default:
		return fmt.Sprintf("ReviewState(%d)", int(s))
	}
}

// CloseReason says why a review ended.
type CloseReason string

const (
	CloseTimeout      CloseReason = "timeout"
	CloseAcknowledged CloseReason = "acknowledged"
	CloseShutdown     CloseReason = "shutdown"
)

// ReviewEvent is the open review for one sampled object.
type ReviewEvent struct {
	ID           string      `json:"id"`
	Count        int         `json:"count"`
	TriggeredAt  time.Time   `json:"triggered_at"`
	Acknowledged bool        `json:"acknowledged"`
	ClosedAt     time.Time   `json:"closed_at,omitzero"`
	Reason       CloseReason `json:"reason,omitempty"`
	// Snapshot is the frame frozen when the review opened.
	Snapshot any `json:"-"`
}

// Outcome of offering a count to the ReviewController.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeOpened
	OutcomeDeferred
)

// ReviewController raises the review alarm for sampled counts and clears it
// on timeout or acknowledgement. It never holds more than one review; a
// sampled count arriving during an alarm is deferred, left in the sample set
// and not retried.
type ReviewController struct {
	samples *SampleSet
	timeout time.Duration
	newID   func() string

	active *ReviewEvent

	generation   uint64
	sampled      int
	opened       uint64
	acknowledged uint64
	timedOut     uint64
	deferred     uint64
}

// NewReviewController returns an idle controller. newID may be nil.
func NewReviewController(samples *SampleSet, timeout time.Duration, newID func() string) (*ReviewController, error) {
	if timeout <= 0 {
		return nil, configErr("review timeout", timeout, "must be positive")
	}
	if newID == nil {
		newID = func() string { return fmt.Sprintf("rev_%s", uuid.NewString()) }
	}
	return &ReviewController{
		samples:    samples,
		timeout:    timeout,
		newID:      newID,
		generation: samples.Generation(),
	}, nil
}

// syncGeneration zeroes the per-cycle sampled count after a regeneration.
func (r *ReviewController) syncGeneration() {
	if g := r.samples.Generation(); g != r.generation {
		r.generation = g
		r.sampled = 0
	}
}

// OnCount checks a new count against the sample set.
func (r *ReviewController) OnCount(now time.Time, count int, snapshot any) (Outcome, *ReviewEvent) {
	r.syncGeneration()
	if !r.samples.Contains(count) {
		return OutcomeNone, nil
	}
	if r.active != nil {
		r.deferred++
		return OutcomeDeferred, nil
	}

	r.samples.Consume(count)
	r.sampled++
	r.opened++
	r.active = &ReviewEvent{
		ID:          r.newID(),
		Count:       count,
		TriggeredAt: now,
		Snapshot:    snapshot,
	}
	ev := *r.active
	ev.Snapshot = nil
	return OutcomeOpened, &ev
}

// Tick closes the active review once its timeout has elapsed.
func (r *ReviewController) Tick(now time.Time) (*ReviewEvent, bool) {
	if r.active == nil || now.Sub(r.active.TriggeredAt) < r.timeout {
		return nil, false
	}
	r.timedOut++
	return r.close(now, CloseTimeout), true
}

// Acknowledge closes the active review immediately.
func (r *ReviewController) Acknowledge(now time.Time) (*ReviewEvent, bool) {
	if r.active == nil {
		return nil, false
	}
	r.active.Acknowledged = true
	r.acknowledged++
	return r.close(now, CloseAcknowledged), true
}

// Abort closes the active review without counting it as acknowledged or
// timed out. Used on shutdown.
func (r *ReviewController) Abort(now time.Time) (*ReviewEvent, bool) {
	if r.active == nil {
		return nil, false
	}
	return r.close(now, CloseShutdown), true
}

func (r *ReviewController) close(now time.Time, reason CloseReason) *ReviewEvent {
	ev := r.active
	r.active = nil
	ev.ClosedAt = now
	ev.Reason = reason
	if rel, ok := ev.Snapshot.(Releaser); ok {
		rel.Release()
	}
	ev.Snapshot = nil
	return ev
}

// State returns IDLE or ALARM_ACTIVE.
func (r *ReviewController) State() ReviewState {
	if r.active != nil {
		return ReviewAlarmActive
	}
	return ReviewIdle
}

// Active returns a copy of the open review without its snapshot.
func (r *ReviewController) Active() (ReviewEvent, bool) {
	if r.active == nil {
		return ReviewEvent{}, false
	}
	ev := *r.active
	ev.Snapshot = nil
	return ev, true
}

// FrozenSnapshot returns the snapshot held by the open review. It is only
// valid until the review closes.
func (r *ReviewController) FrozenSnapshot() (any, bool) {
	if r.active == nil || r.active.Snapshot == nil {
		return nil, false
	}
	return r.active.Snapshot, true
}

// Sampled is the number of reviews opened in the current sampling cycle.
func (r *ReviewController) Sampled() int {
	if r.samples.Generation() != r.generation {
		return 0
	}
	return r.sampled
}

func (r *ReviewController) Opened() uint64       { return r.opened }
func (r *ReviewController) Acknowledged() uint64 { return r.acknowledged }
func (r *ReviewController) TimedOut() uint64     { return r.timedOut }
func (r *ReviewController) Deferred() uint64     { return r.deferred }

// Timeout returns the configured review timeout.
func (r *ReviewController) Timeout() time.Duration { return r.timeout }
