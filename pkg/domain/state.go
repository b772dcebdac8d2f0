package domain

import "time"

// State is a position in an action's authorization lifecycle.
type State string

const (
	StateGenerated  State = "generated"
	StateVisible    State = "visible"
	StateArmed      State = "armed"
	StateReady      State = "ready"
	StateAuthorized State = "authorized" // Terminal, success
	StateExpired    State = "expired"    // Terminal, failure
	StateRejected   State = "rejected"   // Terminal, failure
)

// States lists every state in lifecycle order.
var States = []State{
	StateGenerated,
	StateVisible,
	StateArmed,
	StateReady,
	StateAuthorized,
	StateExpired,
	StateRejected,
}

// IsTerminal reports whether the state accepts no further events.
func (s State) IsTerminal() bool {
	switch s {
	case StateAuthorized, StateExpired, StateRejected:
		return true
	default:
		return false
	}
}

// Event is a discrete input to the state machine.
type Event string

const (
	EventShow           Event = "show"
	EventStartHold      Event = "start_hold"
	EventEndHold        Event = "end_hold"
	EventConfirm        Event = "confirm"
	EventContextInvalid Event = "context_invalid"
	EventExpire         Event = "expire"
	EventReject         Event = "reject"
)

// Events lists every event the machine knows about.
var Events = []Event{
	EventShow,
	EventStartHold,
	EventEndHold,
	EventConfirm,
	EventContextInvalid,
	EventExpire,
	EventReject,
}

// TransitionRecord is one successful transition.
// The ordered sequence of records is the proof of path. It never carries
// advisory data such as a suggestion's confidence.
type TransitionRecord struct {
	Event Event     `json:"event" yaml:"event"`
	From  State     `json:"from" yaml:"from"`
	To    State     `json:"to" yaml:"to"`
	At    time.Time `json:"at" yaml:"at"`
}

// Suggestion is what a producer hands to the gate.
// Confidence is advisory only and is never an input to a transition.
type Suggestion struct {
	Description string
	Confidence  *float64
	// Effect is the set of workspace keys and values the action writes when
	// executed. A nil value removes the key.
	Effect Snapshot
}
