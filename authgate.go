package authgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/authgate/internal/binding"
	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/adapters/memory"
	"github.com/aretw0/authgate/pkg/boundary"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/aretw0/authgate/pkg/lock"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/aretw0/authgate/pkg/signature"
	"github.com/aretw0/authgate/pkg/undo"
)

// ErrNotRecorded is returned when execution is attempted for an action
// that has no sealed ledger entry.
var ErrNotRecorded = errors.New("action has no ledger entry")

// Core wires the gate together. It is constructed explicitly; there is no
// package-level state.
type Core struct {
	manager *binding.Manager
	ledger  *ledger.Ledger
	undo    *undo.Engine
	backend ports.ExecutionBackend

	signer      signature.Signer
	ledgerStore ports.LedgerStore
	checkpoints ports.CheckpointStore
	workspace   ports.Workspace
	locker      ports.DistributedLocker
	newID       func() string

	boundaryOpts []boundary.Option
	hooks        domain.LifecycleHooks
	clock        ports.Clock
	logger       *slog.Logger
}

// Option configures the Core.
type Option func(*Core)

// WithSigner sets the signature provider used by the ledger.
func WithSigner(s signature.Signer) Option {
	return func(c *Core) {
		c.signer = s
	}
}

// WithLedgerStore persists the ledger. Existing entries are loaded and
// verified by New.
func WithLedgerStore(s ports.LedgerStore) Option {
	return func(c *Core) {
		c.ledgerStore = s
	}
}

// WithCheckpointStore sets where checkpoints live.
func WithCheckpointStore(s ports.CheckpointStore) Option {
	return func(c *Core) {
		c.checkpoints = s
	}
}

// WithWorkspace sets the workspace that undo restores.
func WithWorkspace(ws ports.Workspace) Option {
	return func(c *Core) {
		c.workspace = ws
	}
}

// WithLocker serializes undo across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(c *Core) {
		c.locker = l
	}
}

// WithLifecycleHooks registers observability hooks on every component.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Core) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithBoundaryOptions applies opts to every boundary returned by Suggest.
func WithBoundaryOptions(opts ...boundary.Option) Option {
	return func(c *Core) {
		c.boundaryOpts = append(c.boundaryOpts, opts...)
	}
}

// WithIDGenerator overrides action id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Core) {
		c.newID = fn
	}
}

// WithClock sets the clock for every component.
func WithClock(clock ports.Clock) Option {
	return func(c *Core) {
		c.clock = clock
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// New builds a Core bound to the initial context. backend may be nil, in
// which case actions are executed against the workspace.
func New(ctx context.Context, initial domain.Context, backend ports.ExecutionBackend, opts ...Option) (*Core, error) {
	c := &Core{
		backend: backend,
		clock:   ports.SystemClock{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.signer == nil {
		p, err := signature.NewProvider()
		if err != nil {
			return nil, err
		}
		c.signer = p
	}
	if c.checkpoints == nil {
		c.checkpoints = memory.NewCheckpointStore()
	}
	if c.workspace == nil {
		c.workspace = memory.NewWorkspace(nil)
	}
	if c.backend == nil {
		c.backend = NewWorkspaceBackend(c.workspace)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(c.logger),
		ledger.WithHooks(c.hooks),
		ledger.WithClock(c.clock),
	}
	if c.ledgerStore != nil {
		l, err := ledger.Open(ctx, c.signer, c.ledgerStore, ledgerOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		c.ledger = l
	} else {
		c.ledger = ledger.New(c.signer, ledgerOpts...)
	}

	c.undo = undo.New(c.checkpoints, c.workspace,
		undo.WithLocks(lock.New(lock.WithLocker(c.locker), lock.WithLogger(c.logger))),
		undo.WithClock(c.clock),
		undo.WithLogger(c.logger),
		undo.WithHooks(c.hooks),
	)

	managerOpts := []binding.Option{
		binding.WithClock(c.clock),
		binding.WithLogger(c.logger),
		binding.WithHooks(c.hooks),
	}
	if c.newID != nil {
		managerOpts = append(managerOpts, binding.WithIDGenerator(c.newID))
	}
	c.manager = binding.NewManager(initial, managerOpts...)

	return c, nil
}

// Suggest registers a suggestion in the current context and returns the
// boundary through which a human can authorize it.
func (c *Core) Suggest(s domain.Suggestion) *boundary.Boundary {
	opts := append([]boundary.Option{
		boundary.WithClock(c.clock),
		boundary.WithLogger(c.logger),
	}, c.boundaryOpts...)
	return boundary.New(c.manager, s, c.authorize, opts...)
}

// SwitchContext changes the current context. Boundaries rebind to fresh
// actions; other outstanding actions go stale lazily.
func (c *Core) SwitchContext(next domain.Context) {
	c.manager.SwitchContext(next)
}

// CurrentContext returns the current context.
func (c *Core) CurrentContext() domain.Context {
	return c.manager.Current()
}

// authorize runs once an action is authorized: checkpoint, ledger entry,
// then execution. Execution never starts unless both records exist.
func (c *Core) authorize(ctx context.Context, auth boundary.Authorization) error {
	action := ports.AuthorizedAction{
		ID:          auth.ActionID,
		Description: auth.Description,
		Context:     auth.Context,
		Effect:      auth.Effect,
	}

	snapshot, err := c.backend.Snapshot(ctx, action)
	if err != nil {
		return fmt.Errorf("failed to capture pre-execution state: %w", err)
	}

	if _, err := c.undo.CreateCheckpoint(ctx, auth.ActionID, snapshot, map[string]string{
		"context_id":  auth.Context.ID,
		"source_hash": auth.Context.SourceHash,
		"description": auth.Description,
	}); err != nil {
		return err
	}

	if _, err := c.ledger.Append(ctx, ledger.Record{
		ActionID:             auth.ActionID,
		ExecutedAt:           auth.AuthorizedAt,
		Context:              auth.Context,
		TransitionPath:       auth.Transitions,
		PreExecutionSnapshot: snapshot,
		ExecutionDuration:    auth.AuthorizedAt.Sub(auth.CreatedAt),
		ConfirmationTime:     ConfirmationTime(auth.Transitions),
	}); err != nil {
		if perr := c.undo.Purge(ctx, auth.ActionID); perr != nil {
			c.logger.WarnContext(ctx, "failed to purge orphan checkpoint", "action_id", auth.ActionID, "err", perr)
		}
		return err
	}

	if !c.CanExecute(auth.ActionID) {
		return fmt.Errorf("%w: %s", ErrNotRecorded, auth.ActionID)
	}
	if err := c.backend.Execute(ctx, action); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	c.manager.Forget(auth.ActionID)
	c.logger.InfoContext(ctx, "action executed", "action_id", auth.ActionID)
	return nil
}

// ConfirmationTime is the time between the first and the second confirm
// in a transition path, or zero when the path has fewer than two.
func ConfirmationTime(path []domain.TransitionRecord) time.Duration {
	var first time.Time
	for _, r := range path {
		if r.Event != domain.EventConfirm {
			continue
		}
		if first.IsZero() {
			first = r.At
			continue
		}
		return r.At.Sub(first)
	}
	return 0
}

// CanExecute reports whether actionID has a sealed ledger entry.
func (c *Core) CanExecute(actionID string) bool {
	entry, err := c.ledger.Entry(actionID)
	return err == nil && entry.Sealed
}

// Undo restores the pre-execution state of one action.
func (c *Core) Undo(ctx context.Context, actionID string) undo.Result {
	return c.undo.Undo(ctx, actionID)
}

// Redo reapplies the most recent undo. The result is always partial.
func (c *Core) Redo(ctx context.Context) undo.Result {
	return c.undo.Redo(ctx)
}

// PurgeCheckpoint drops the checkpoint of an action.
func (c *Core) PurgeCheckpoint(ctx context.Context, actionID string) error {
	return c.undo.Purge(ctx, actionID)
}

// VerifyLedger runs a full chain verification.
func (c *Core) VerifyLedger(ctx context.Context) error {
	return c.ledger.VerifyChainIntegrity(ctx)
}

// SealLedger makes the ledger read-only.
func (c *Core) SealLedger(ctx context.Context) error {
	return c.ledger.Seal(ctx)
}

// ExportLedger writes the ledger in the given format.
func (c *Core) ExportLedger(ctx context.Context, w io.Writer, format ledger.Format) error {
	return c.ledger.Export(ctx, w, format)
}

// Audit returns a read-only ledger view.
func (c *Core) Audit() ports.AuditReader {
	return auditView{c.ledger}
}

// auditView hides the append path of the ledger.
type auditView struct {
	l *ledger.Ledger
}

func (v auditView) Entries() []domain.AuditEntry { return v.l.Entries() }

func (v auditView) Entry(id string) (domain.AuditEntry, error) { return v.l.Entry(id) }

func (v auditView) Tip() string { return v.l.Tip() }

func (v auditView) Len() int { return v.l.Len() }

func (v auditView) Sealed() bool { return v.l.Sealed() }

func (v auditView) VerifyChainIntegrity(ctx context.Context) error {
	return v.l.VerifyChainIntegrity(ctx)
}

// Workspace returns the workspace actions are executed against.
func (c *Core) Workspace() ports.Workspace {
	return c.workspace
}
