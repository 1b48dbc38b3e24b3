package counting

import "time"

// EventKind names a state transition of the engine.
type EventKind string

const (
	EventCrossing        EventKind = "crossing"
	EventReviewOpened    EventKind = "review_opened"
	EventReviewClosed    EventKind = "review_closed"
	EventReviewDeferred  EventKind = "review_deferred"
	EventSamplesRenewed  EventKind = "samples_regenerated"
	EventCounterReset    EventKind = "counter_reset"
	EventActuatorFailure EventKind = "actuator_failure"
)

// Event is published to subscribers on every state transition.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Time       time.Time   `json:"time"`
	Count      int         `json:"count"`
	Generation uint64      `json:"generation,omitempty"`
	Samples    int         `json:"samples,omitempty"`
	ReviewID   string      `json:"review_id,omitempty"`
	Reason     CloseReason `json:"reason,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// subscriberBuffer is the per-subscriber backlog before events are dropped.
const subscriberBuffer = 64
