package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an event is not permitted from the current state.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrStaleContext is returned when an action's bound context is no longer current.
var ErrStaleContext = errors.New("stale context")

// ErrChainIntegrity is returned when the ledger's hash chain does not verify.
var ErrChainIntegrity = errors.New("chain integrity violation")

// ErrSealedLedger is returned when an append is attempted on a sealed ledger.
var ErrSealedLedger = errors.New("ledger is sealed")

// ErrCheckpointNotFound is returned when no checkpoint exists for an action id.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrActionNotFound is returned when an action id is not registered.
var ErrActionNotFound = errors.New("action not found")

// ErrEntryNotFound is returned when the ledger holds no entry for an action id.
var ErrEntryNotFound = errors.New("audit entry not found")

// InvalidTransitionError names the rejected (state, event) pair.
// State is unaffected when this error is returned.
type InvalidTransitionError struct {
	ActionID string
	State    State
	Event    Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not permitted from state %q (action %s)", e.Event, e.State, e.ActionID)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StaleContextError names both the bound and the current context.
type StaleContextError struct {
	ActionID string
	Bound    Context
	Current  Context
}

func (e *StaleContextError) Error() string {
	return fmt.Sprintf("stale context for action %s: bound to %s, current is %s", e.ActionID, e.Bound, e.Current)
}

func (e *StaleContextError) Is(target error) bool {
	return target == ErrStaleContext
}

// ChainIntegrityError identifies the first entry whose stored and recomputed values diverge.
type ChainIntegrityError struct {
	Index    int
	ActionID string
	Reason   string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at entry %d (action %s): %s", e.Index, e.ActionID, e.Reason)
}

func (e *ChainIntegrityError) Is(target error) bool {
	return target == ErrChainIntegrity
}

// SealedLedgerError names the action whose append was denied.
type SealedLedgerError struct {
	ActionID string
}

func (e *SealedLedgerError) Error() string {
	return fmt.Sprintf("append denied for action %s: %v", e.ActionID, ErrSealedLedger)
}

func (e *SealedLedgerError) Is(target error) bool {
	return target == ErrSealedLedger
}
