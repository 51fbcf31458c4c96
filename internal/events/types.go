package events

import "time"

// Event enumerates gateway lifecycle topics published on the Bus.
type Event string

const (
	EventConnectionState Event = "connection.state"
	EventDispatchDropped Event = "dispatch.dropped"
	EventReplayFailed    Event = "subscription.replay_failed"
	EventOrderRejected   Event = "order.transition_rejected"
)

// StateChange is published on EventConnectionState.
type StateChange struct {
	Context string
	State   string
	At      time.Time
}

// Dropped is published on EventDispatchDropped.
type Dropped struct {
	Kind   Kind
	Symbol string
}

// ReplayFailed is published on EventReplayFailed.
type ReplayFailed struct {
	Context string
	Err     error
}

// TransitionRejected is published on EventOrderRejected.
type TransitionRejected struct {
	OrderID string
	From    string
	To      string
}
