// Package authority implements the per-action authorization state machine.
//
// The package is internal: only the gate itself can construct or drive a
// machine. Callers outside the module reach it exclusively through the
// mutation boundary.
package authority

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ports"
)

// HoldThreshold is the minimum continuous hold before an action can be armed.
// It is fixed and never derived from caller input.
const HoldThreshold = 400 * time.Millisecond

// Allowed reports whether event is declared for state.
// elapsed only matters for EventEndHold, which is always declared from
// StateVisible and decides between arming and staying visible.
func Allowed(state domain.State, event domain.Event) bool {
	_, ok := next(state, event, 0)
	return ok
}

// next is the transition function. It is total: every (state, event) pair
// has an outcome, and ok == false is the null outcome.
func next(state domain.State, event domain.Event, elapsed time.Duration) (to domain.State, ok bool) {
	if state.IsTerminal() {
		return state, false
	}

	switch event {
	case domain.EventContextInvalid, domain.EventExpire:
		return domain.StateExpired, true
	case domain.EventReject:
		return domain.StateRejected, true
	case domain.EventShow:
		if state == domain.StateGenerated {
			return domain.StateVisible, true
		}
	case domain.EventStartHold:
		if state == domain.StateVisible {
			return domain.StateVisible, true
		}
	case domain.EventEndHold:
		if state == domain.StateVisible {
			if elapsed >= HoldThreshold {
				return domain.StateArmed, true
			}
			return domain.StateVisible, true
		}
	case domain.EventConfirm:
		switch state {
		case domain.StateArmed:
			return domain.StateReady, true
		case domain.StateReady:
			return domain.StateAuthorized, true
		}
	}
	return state, false
}

// Machine is the sole decision authority for one action.
// All transitions on an instance run inside one critical section.
type Machine struct {
	mu    sync.Mutex
	state domain.State
	log   []domain.TransitionRecord

	actionID string
	bound    domain.Context
	clock    ports.Clock
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used to stamp transition records.
func WithClock(c ports.Clock) Option {
	return func(m *Machine) {
		m.clock = c
	}
}

// WithLogger sets the logger used for rejected transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = hooks
	}
}

// New creates a machine in StateGenerated, seeded with the bound context.
func New(actionID string, bound domain.Context, opts ...Option) *Machine {
	m := &Machine{
		state:    domain.StateGenerated,
		actionID: actionID,
		bound:    bound,
		clock:    ports.SystemClock{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ActionID returns the id of the action this machine decides for.
func (m *Machine) ActionID() string { return m.actionID }

// Bound returns the context the machine was seeded with.
func (m *Machine) Bound() domain.Context { return m.bound }

// State returns the current state.
func (m *Machine) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transitions returns a copy of the transition log.
func (m *Machine) Transitions() []domain.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TransitionRecord(nil), m.log...)
}

// Show delivers the show event once the preview is on screen.
func (m *Machine) Show(ctx context.Context) error {
	_, _, err := m.FireIf(ctx, domain.EventShow, 0, nil)
	return err
}

// StartHold delivers the start-of-hold event. It never arms the action.
func (m *Machine) StartHold(ctx context.Context) error {
	_, _, err := m.FireIf(ctx, domain.EventStartHold, 0, nil)
	return err
}

// EndHold ends a hold that lasted elapsed. Only this call decides whether
// the action is armed.
func (m *Machine) EndHold(ctx context.Context, elapsed time.Duration) (domain.State, error) {
	_, state, err := m.FireIf(ctx, domain.EventEndHold, elapsed, nil)
	return state, err
}

// Confirm delivers one deliberate confirmation and returns the new state.
func (m *Machine) Confirm(ctx context.Context) (domain.State, error) {
	_, state, err := m.FireIf(ctx, domain.EventConfirm, 0, nil)
	return state, err
}

// Invalidate delivers the context-invalid event.
func (m *Machine) Invalidate(ctx context.Context) error {
	_, _, err := m.FireIf(ctx, domain.EventContextInvalid, 0, nil)
	return err
}

// Expire delivers the timeout event.
func (m *Machine) Expire(ctx context.Context) error {
	_, _, err := m.FireIf(ctx, domain.EventExpire, 0, nil)
	return err
}

// Reject delivers an explicit rejection.
func (m *Machine) Reject(ctx context.Context) error {
	_, _, err := m.FireIf(ctx, domain.EventReject, 0, nil)
	return err
}

// FireIf reads the current state, asks guard whether to proceed and applies
// event, all in one critical section. A nil guard always proceeds. When the
// guard declines, nothing changes and applied is false with a nil error.
func (m *Machine) FireIf(ctx context.Context, event domain.Event, elapsed time.Duration, guard func(domain.State) bool) (applied bool, state domain.State, err error) {
	m.mu.Lock()
	from := m.state
	if guard != nil && !guard(from) {
		m.mu.Unlock()
		return false, from, nil
	}

	to, ok := next(from, event, elapsed)
	now := m.clock.Now()
	if !ok {
		m.mu.Unlock()
		err := &domain.InvalidTransitionError{ActionID: m.actionID, State: from, Event: event}
		m.logger.WarnContext(ctx, "transition rejected",
			"action_id", m.actionID,
			"state", from,
			"event", event,
		)
		if m.hooks.OnTransitionRejected != nil {
			m.hooks.OnTransitionRejected(ctx, &domain.TransitionEvent{
				Timestamp: now,
				ActionID:  m.actionID,
				Event:     event,
				From:      from,
				Err:       err,
			})
		}
		return false, from, err
	}

	m.log = append(m.log, domain.TransitionRecord{Event: event, From: from, To: to, At: now})
	m.state = to
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "transition",
		"action_id", m.actionID,
		"event", event,
		"from", from,
		"to", to,
	)
	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(ctx, &domain.TransitionEvent{
			Timestamp: now,
			ActionID:  m.actionID,
			Event:     event,
			From:      from,
			To:        to,
		})
	}
	return true, to, nil
}
