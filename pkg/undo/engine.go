// Package undo captures per-action checkpoints and restores them atomically.
//
// A checkpoint holds only the workspace keys its action touches, so undoing
// one action never rewrites keys recorded by another.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/lock"
	"github.com/aretw0/authgate/pkg/ports"
)

// ErrNothingToRedo is reported when no undo is available for redo.
var ErrNothingToRedo = errors.New("nothing to redo")

// Result is the outcome of Undo or Redo. Failures are reported here, not
// as returned errors.
type Result struct {
	ActionID string
	OK       bool
	// Partial is set by Redo: it restores the values the undo overwrote,
	// which is not a re-execution of the action.
	Partial bool
	Err     error
}

// Frame records one successful undo.
type Frame struct {
	ActionID string
	At       time.Time
	// Before holds the checkpoint keys as they were just before the undo.
	// A nil value means the key was absent.
	Before domain.Snapshot
}

// Engine owns checkpoints and the undo history.
type Engine struct {
	checkpoints ports.CheckpointStore
	workspace   ports.Workspace
	locks       *lock.Keyed

	mu      sync.Mutex
	history []Frame
	redo    []Frame

	clock  ports.Clock
	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocks sets the per-action lock set, for example one backed by a
// distributed locker.
func WithLocks(k *lock.Keyed) Option {
	return func(e *Engine) {
		e.locks = k
	}
}

// WithClock sets the clock.
func WithClock(c ports.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// New creates an Engine.
func New(checkpoints ports.CheckpointStore, workspace ports.Workspace, opts ...Option) *Engine {
	e := &Engine{
		checkpoints: checkpoints,
		workspace:   workspace,
		clock:       ports.SystemClock{},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locks == nil {
		e.locks = lock.New(lock.WithLogger(e.logger))
	}
	return e
}

// CreateCheckpoint stores a deep copy of snapshot for actionID.
func (e *Engine) CreateCheckpoint(ctx context.Context, actionID string, snapshot domain.Snapshot, metadata map[string]string) (domain.Checkpoint, error) {
	cp := domain.Checkpoint{
		ActionID:  actionID,
		CreatedAt: e.clock.Now(),
		Snapshot:  snapshot.Clone(),
		Metadata:  metadata,
	}.Clone()
	if cp.Snapshot == nil {
		cp.Snapshot = domain.Snapshot{}
	}

	if err := e.checkpoints.Put(ctx, cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to store checkpoint: %w", err)
	}
	e.logger.DebugContext(ctx, "checkpoint created", "action_id", actionID, "keys", len(cp.Snapshot))
	return cp.Clone(), nil
}

// Checkpoint returns the stored checkpoint for actionID.
func (e *Engine) Checkpoint(ctx context.Context, actionID string) (domain.Checkpoint, error) {
	return e.checkpoints.Get(ctx, actionID)
}

// Purge deletes the checkpoint. The action can no longer be undone.
func (e *Engine) Purge(ctx context.Context, actionID string) error {
	return e.locks.WithLock(ctx, actionID, func(ctx context.Context) error {
		if err := e.checkpoints.Delete(ctx, actionID); err != nil {
			return fmt.Errorf("failed to purge checkpoint: %w", err)
		}
		e.logger.InfoContext(ctx, "checkpoint purged", "action_id", actionID)
		return nil
	})
}

// Undo restores the checkpoint of actionID. Restoration is all-or-nothing;
// on failure the workspace is unchanged. A successful undo clears the redo
// stack and becomes the only redo candidate.
func (e *Engine) Undo(ctx context.Context, actionID string) Result {
	var frame Frame
	err := e.locks.WithLock(ctx, actionID, func(ctx context.Context) error {
		cp, err := e.checkpoints.Get(ctx, actionID)
		if err != nil {
			return err
		}

		before, err := e.capture(ctx, cp.Snapshot.Keys())
		if err != nil {
			return err
		}
		if err := e.workspace.Write(ctx, cp.Snapshot); err != nil {
			return fmt.Errorf("failed to restore checkpoint: %w", err)
		}
		frame = Frame{ActionID: actionID, At: e.clock.Now(), Before: before}
		return nil
	})

	if err != nil {
		return e.fail(ctx, actionID, false, err)
	}

	e.mu.Lock()
	e.history = append(e.history, frame)
	e.redo = append(e.redo[:0], frame)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "action undone", "action_id", actionID)
	e.emit(ctx, actionID, false, nil)
	return Result{ActionID: actionID, OK: true}
}

// Redo reapplies the most recent undo by writing back the values it
// overwrote. It does not re-execute the action, so the result is always
// marked Partial.
func (e *Engine) Redo(ctx context.Context) Result {
	e.mu.Lock()
	if len(e.redo) == 0 {
		e.mu.Unlock()
		return e.fail(ctx, "", true, ErrNothingToRedo)
	}
	frame := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.mu.Unlock()

	err := e.locks.WithLock(ctx, frame.ActionID, func(ctx context.Context) error {
		return e.workspace.Write(ctx, frame.Before)
	})
	if err != nil {
		e.mu.Lock()
		e.redo = append(e.redo, frame)
		e.mu.Unlock()
		return e.fail(ctx, frame.ActionID, true, fmt.Errorf("failed to redo: %w", err))
	}

	e.logger.InfoContext(ctx, "action redone (partial)", "action_id", frame.ActionID)
	e.emit(ctx, frame.ActionID, true, nil)
	return Result{ActionID: frame.ActionID, OK: true, Partial: true}
}

// capture reads keys and marks absent ones with nil so a later write
// removes them again.
func (e *Engine) capture(ctx context.Context, keys []string) (domain.Snapshot, error) {
	current, err := e.workspace.Read(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, k := range keys {
		if _, ok := current[k]; !ok {
			current[k] = nil
		}
	}
	return current, nil
}

func (e *Engine) fail(ctx context.Context, actionID string, redo bool, err error) Result {
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		err = fmt.Errorf("cannot undo action %q: %w", actionID, err)
	}
	e.logger.WarnContext(ctx, "undo failed", "action_id", actionID, "redo", redo, "err", err)
	e.emit(ctx, actionID, redo, err)
	return Result{ActionID: actionID, Err: err}
}

func (e *Engine) emit(ctx context.Context, actionID string, redo bool, err error) {
	if e.hooks.OnUndo != nil {
		e.hooks.OnUndo(ctx, &domain.UndoEvent{
			Timestamp: e.clock.Now(),
			ActionID:  actionID,
			Redo:      redo,
			Err:       err,
		})
	}
}

// History returns every successful undo in order.
func (e *Engine) History() []Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Frame, len(e.history))
	for i, f := range e.history {
		out[i] = Frame{ActionID: f.ActionID, At: f.At, Before: f.Before.Clone()}
	}
	return out
}

// CanRedo reports whether Redo has a candidate.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}
