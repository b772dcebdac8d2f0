// Package binding binds actions to the operating context they were created in.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/authgate/internal/authority"
	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/google/uuid"
)

// Action is one suggestion's authorization lifecycle.
// The machine is exclusively owned by the action and is never handed out
// beyond the gate's internal packages.
type Action struct {
	id         string
	bound      domain.Context
	createdAt  time.Time
	suggestion domain.Suggestion
	machine    *authority.Machine
}

// ID returns the action id.
func (a *Action) ID() string { return a.id }

// Bound returns the context captured when the action was created.
func (a *Action) Bound() domain.Context { return a.bound }

// CreatedAt returns the creation instant.
func (a *Action) CreatedAt() time.Time { return a.createdAt }

// Description returns the suggestion's preview text.
func (a *Action) Description() string { return a.suggestion.Description }

// State returns the current state of the action's machine.
func (a *Action) State() domain.State { return a.machine.State() }

// Machine returns the authority machine that decides for this action.
func (a *Action) Machine() *authority.Machine { return a.machine }

// Confidence returns the producer's advisory score, if any.
// It is display-only and never reaches the machine.
func (a *Action) Confidence() (float64, bool) {
	if a.suggestion.Confidence == nil {
		return 0, false
	}
	return *a.suggestion.Confidence, true
}

// Manager owns the current context and the registry of live actions.
type Manager struct {
	mu          sync.RWMutex
	current     domain.Context
	actions     map[string]*Action
	listeners   map[int]func(domain.Context)
	listenerSeq int

	clock  ports.Clock
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	newID  func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithClock sets the clock for action timestamps and their machines.
func WithClock(c ports.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger configures a logger for the Manager and the machines it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithHooks registers hooks passed down to every machine.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithIDGenerator replaces the uuid-based action id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager creates a manager whose current context is initial.
func NewManager(initial domain.Context, opts ...Option) *Manager {
	m := &Manager{
		current:   initial,
		actions:   make(map[string]*Action),
		listeners: make(map[int]func(domain.Context)),
		clock:     ports.SystemClock{},
		logger:    logging.NewNop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the current context.
func (m *Manager) Current() domain.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CreateAction snapshots the current context and registers a new action
// with a fresh machine seeded with that snapshot.
func (m *Manager) CreateAction(s domain.Suggestion) *Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	for _, taken := m.actions[id]; taken; _, taken = m.actions[id] {
		id = m.newID()
	}

	bound := m.current
	a := &Action{
		id:         id,
		bound:      bound,
		createdAt:  m.clock.Now(),
		suggestion: s,
		machine: authority.New(id, bound,
			authority.WithClock(m.clock),
			authority.WithLogger(m.logger),
			authority.WithHooks(m.hooks),
		),
	}
	m.actions[id] = a
	m.logger.Debug("action created", "action_id", id, "context", bound.String())
	return a
}

// Lookup returns a registered action.
func (m *Manager) Lookup(id string) (*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotFound, id)
	}
	return a, nil
}

// Forget drops an action from the registry once its records are durable.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, id)
}

// Len returns the number of registered actions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.actions)
}

// IsActionValid reports whether a may still transition.
// Terminal actions are always valid: they are already resolved.
func (m *Manager) IsActionValid(a *Action) bool {
	if a.State().IsTerminal() {
		return true
	}
	return a.bound.Matches(m.Current())
}

// ValidateActionContext expires a stale action and reports the staleness.
// The returned error is a *domain.StaleContextError naming both contexts.
func (m *Manager) ValidateActionContext(ctx context.Context, a *Action) error {
	if m.IsActionValid(a) {
		return nil
	}

	// The machine may have reached a terminal state since the check above.
	if err := a.machine.Invalidate(ctx); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		m.logger.WarnContext(ctx, "context invalidation failed", "action_id", a.id, "err", err)
	}

	stale := &domain.StaleContextError{ActionID: a.id, Bound: a.bound, Current: m.Current()}
	m.logger.WarnContext(ctx, "stale context",
		"action_id", a.id,
		"bound", a.bound.String(),
		"current", stale.Current.String(),
	)
	if m.hooks.OnStaleContext != nil {
		m.hooks.OnStaleContext(ctx, stale)
	}
	return stale
}

// SwitchContext replaces the current context.
// Outstanding actions are not expired here; invalidation is observed the
// next time ValidateActionContext runs for each of them.
func (m *Manager) SwitchContext(next domain.Context) {
	m.mu.Lock()
	prev := m.current
	m.current = next
	listeners := make([]func(domain.Context), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Info("context switched", "from", prev.String(), "to", next.String())
	for _, fn := range listeners {
		fn(next)
	}
}

// OnSwitch registers fn to be called after every SwitchContext.
// The returned func removes the registration.
func (m *Manager) OnSwitch(fn func(domain.Context)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.listenerSeq
	m.listenerSeq++
	m.listeners[key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, key)
	}
}
