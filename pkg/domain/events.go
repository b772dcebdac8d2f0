package domain

import (
	"context"
	"time"
)

// TransitionEvent describes a transition attempt on one action.
type TransitionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ActionID  string    `json:"action_id"`
	Event     Event     `json:"event"`
	From      State     `json:"from"`
	To        State     `json:"to,omitempty"`
	Err       error     `json:"-"`
}

// LedgerEvent describes an append attempt.
type LedgerEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	ActionID   string    `json:"action_id"`
	ChainIndex int       `json:"chain_index"`
	Err        error     `json:"-"`
}

// UndoEvent describes an undo or redo outcome.
type UndoEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ActionID  string    `json:"action_id"`
	Redo      bool      `json:"redo,omitempty"`
	Err       error     `json:"-"`
}

// LifecycleHooks defines callbacks for observability.
// Every rejected path has a hook so that nothing fails silently.
type LifecycleHooks struct {
	OnTransition         func(context.Context, *TransitionEvent)
	OnTransitionRejected func(context.Context, *TransitionEvent)
	OnStaleContext       func(context.Context, *StaleContextError)
	OnAppend             func(context.Context, *LedgerEvent)
	OnAppendDenied       func(context.Context, *LedgerEvent)
	OnUndo               func(context.Context, *UndoEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition:         chain(h.OnTransition, other.OnTransition),
		OnTransitionRejected: chain(h.OnTransitionRejected, other.OnTransitionRejected),
		OnStaleContext:       chain(h.OnStaleContext, other.OnStaleContext),
		OnAppend:             chain(h.OnAppend, other.OnAppend),
		OnAppendDenied:       chain(h.OnAppendDenied, other.OnAppendDenied),
		OnUndo:               chain(h.OnUndo, other.OnUndo),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
