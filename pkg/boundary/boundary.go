// Package boundary is the only surface through which a human gesture can
// move an action toward authorization.
//
// A Boundary holds its action, and with it the state machine, in an
// unexported field. Callers get exactly five gestures (Show, Arm, Release,
// Confirm, Cancel) and a read-only View.
package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/authgate/internal/authority"
	"github.com/aretw0/authgate/internal/binding"
	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ports"
)

// DefaultProgressInterval is how often hold progress is sampled.
const DefaultProgressInterval = 16 * time.Millisecond

// Authorization describes an action that just reached the authorized state.
type Authorization struct {
	ActionID     string
	Description  string
	Context      domain.Context
	Effect       domain.Snapshot
	CreatedAt    time.Time
	AuthorizedAt time.Time
	Transitions  []domain.TransitionRecord
}

// Authorizer runs once per action, right after it is authorized.
type Authorizer func(ctx context.Context, auth Authorization) error

// View is the read-only snapshot handed to renderers.
type View struct {
	ActionID     string
	State        domain.State
	Preview      string
	Context      domain.Context
	Holding      bool
	HoldProgress float64
	// Confidence is advisory display data only.
	Confidence *float64
}

// Boundary mediates the gestures for one suggestion.
type Boundary struct {
	mu         sync.Mutex
	manager    *binding.Manager
	suggestion domain.Suggestion
	action     *binding.Action
	authorize  Authorizer

	holding   bool
	holdStart time.Time
	progress  float64
	stopHold  chan struct{}
	ttlTimer  *time.Timer
	unsub     func()
	closed    bool

	ttl        time.Duration
	interval   time.Duration
	onProgress func(View)
	clock      ports.Clock
	logger     *slog.Logger
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithTTL expires the action if it is still unresolved after ttl.
// Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(b *Boundary) {
		b.ttl = ttl
	}
}

// WithProgressInterval sets the hold progress sampling interval.
func WithProgressInterval(d time.Duration) Option {
	return func(b *Boundary) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithProgressFunc receives a View on every progress sample while holding.
// It runs on the sampling goroutine and must not call back into the Boundary.
func WithProgressFunc(fn func(View)) Option {
	return func(b *Boundary) {
		b.onProgress = fn
	}
}

// WithClock sets the clock used to measure holds.
func WithClock(c ports.Clock) Option {
	return func(b *Boundary) {
		b.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Boundary) {
		b.logger = logger
	}
}

// New creates an action for s in manager's current context and returns the
// boundary that mediates it. authorize may be nil. The description is
// passed through SanitizePreview.
func New(manager *binding.Manager, s domain.Suggestion, authorize Authorizer, opts ...Option) *Boundary {
	s.Description = SanitizePreview(s.Description)
	b := &Boundary{
		manager:    manager,
		suggestion: s,
		authorize:  authorize,
		interval:   DefaultProgressInterval,
		clock:      ports.SystemClock{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.action = manager.CreateAction(s)
	b.startTTL(b.action)
	b.unsub = manager.OnSwitch(b.rebind)
	return b
}

// ActionID returns the id of the action currently mediated.
func (b *Boundary) ActionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.action.ID()
}

// View returns a snapshot of the current state.
func (b *Boundary) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

func (b *Boundary) viewLocked() View {
	var confidence *float64
	if c := b.suggestion.Confidence; c != nil {
		v := *c
		confidence = &v
	}
	return View{
		ActionID:     b.action.ID(),
		State:        b.action.State(),
		Preview:      b.suggestion.Description,
		Context:      b.action.Bound(),
		Holding:      b.holding,
		HoldProgress: b.progress,
		Confidence:   confidence,
	}
}

// Show presents the suggestion.
func (b *Boundary) Show(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.validate(ctx); err != nil {
		return err
	}
	return b.action.Machine().Show(ctx)
}

// Arm starts a hold. Progress is sampled until Release or Cancel; sampling
// never decides the outcome.
func (b *Boundary) Arm(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.validate(ctx); err != nil {
		return err
	}
	if err := b.action.Machine().StartHold(ctx); err != nil {
		return err
	}

	b.stopHoldLocked()
	b.holding = true
	b.holdStart = b.clock.Now()
	b.progress = 0
	b.stopHold = make(chan struct{})
	go b.sample(b.action, b.holdStart, b.stopHold)
	return nil
}

// Release ends the hold. The machine alone decides whether the action is armed.
func (b *Boundary) Release(ctx context.Context) (domain.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var elapsed time.Duration
	if b.holding {
		elapsed = b.clock.Since(b.holdStart)
	}
	b.stopHoldLocked()

	if err := b.validate(ctx); err != nil {
		return b.action.State(), err
	}
	return b.action.Machine().EndHold(ctx, elapsed)
}

// Confirm delivers one confirmation. The second confirmation after arming
// authorizes the action and runs the authorizer.
func (b *Boundary) Confirm(ctx context.Context) (domain.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.validate(ctx); err != nil {
		return b.action.State(), err
	}

	state, err := b.action.Machine().Confirm(ctx)
	if err != nil || state != domain.StateAuthorized {
		return state, err
	}

	b.stopTTLLocked()
	if b.authorize == nil {
		return state, nil
	}

	a := b.action
	log := a.Machine().Transitions()
	auth := Authorization{
		ActionID:     a.ID(),
		Description:  a.Description(),
		Context:      a.Bound(),
		Effect:       b.suggestion.Effect.Clone(),
		CreatedAt:    a.CreatedAt(),
		AuthorizedAt: log[len(log)-1].At,
		Transitions:  log,
	}
	if err := b.authorize(ctx, auth); err != nil {
		b.logger.ErrorContext(ctx, "authorization pipeline failed", "action_id", a.ID(), "err", err)
		return state, fmt.Errorf("action %s authorized but not executed: %w", a.ID(), err)
	}
	return state, nil
}

// Cancel rejects the action. It works from any non-terminal state, even
// when the context has gone stale.
func (b *Boundary) Cancel(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopHoldLocked()
	if err := b.action.Machine().Reject(ctx); err != nil {
		return err
	}
	b.stopTTLLocked()
	return nil
}

// Close stops timers and detaches from context switches.
// The current action keeps its state.
func (b *Boundary) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.stopHoldLocked()
	b.stopTTLLocked()
	b.unsub()
}

func (b *Boundary) validate(ctx context.Context) error {
	if err := b.manager.ValidateActionContext(ctx, b.action); err != nil {
		b.stopTTLLocked()
		return err
	}
	return nil
}

// rebind runs after a context switch: the old action is dropped and a new
// one is bound to next. Nothing carries over.
func (b *Boundary) rebind(next domain.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.stopHoldLocked()
	b.stopTTLLocked()
	old := b.action
	b.action = b.manager.CreateAction(b.suggestion)
	b.startTTL(b.action)
	fresh := b.action.ID()
	b.mu.Unlock()

	if !old.State().IsTerminal() {
		b.manager.Forget(old.ID())
	}
	b.logger.Info("boundary rebound",
		"old_action_id", old.ID(),
		"action_id", fresh,
		"context", next.String(),
	)
}

func (b *Boundary) sample(a *binding.Action, start time.Time, stop chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.stopHold != stop || b.action != a || a.State() != domain.StateVisible {
				b.mu.Unlock()
				return
			}
			b.progress = Progress(b.clock.Since(start))
			view := b.viewLocked()
			b.mu.Unlock()

			if b.onProgress != nil {
				b.onProgress(view)
			}
		}
	}
}

func (b *Boundary) stopHoldLocked() {
	if b.stopHold != nil {
		close(b.stopHold)
		b.stopHold = nil
	}
	b.holding = false
	b.progress = 0
}

func (b *Boundary) startTTL(a *binding.Action) {
	if b.ttl <= 0 {
		return
	}
	m := a.Machine()
	b.ttlTimer = time.AfterFunc(b.ttl, func() {
		ctx := context.Background()
		applied, _, err := m.FireIf(ctx, domain.EventExpire, 0, func(s domain.State) bool {
			return !s.IsTerminal()
		})
		if err != nil {
			b.logger.Warn("action expiry failed", "action_id", a.ID(), "err", err)
			return
		}
		if applied {
			b.logger.Info("action expired", "action_id", a.ID(), "ttl", b.ttl)
			b.mu.Lock()
			if b.action == a {
				b.stopHoldLocked()
			}
			b.mu.Unlock()
		}
	})
}

func (b *Boundary) stopTTLLocked() {
	if b.ttlTimer != nil {
		b.ttlTimer.Stop()
		b.ttlTimer = nil
	}
}

// Progress maps a hold duration to [0, 1] against the fixed hold threshold.
func Progress(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	p := float64(elapsed) / float64(authority.HoldThreshold)
	if p > 1 {
		return 1
	}
	return p
}
