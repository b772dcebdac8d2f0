// Package ledger implements the append-only, hash-chained audit ledger.
//
// Each entry's digest covers its canonical fields together with the chain
// tip it extends, so altering any stored entry breaks verification at that
// entry. Digests come from a pluggable signature.Signer.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/aretw0/authgate/pkg/signature"
)

// ErrDuplicateEntry is returned when an action already has an entry.
var ErrDuplicateEntry = errors.New("action already recorded")

// ErrSnapshotKeyCollision is returned when two snapshot keys are the same
// text in different Unicode normalization forms.
var ErrSnapshotKeyCollision = errors.New("snapshot keys collide after NFC normalization")

// Record is the input to Append: everything about an authorized action
// except the chain fields the ledger assigns.
type Record struct {
	ActionID             string
	ExecutedAt           time.Time
	Context              domain.Context
	TransitionPath       []domain.TransitionRecord
	PreExecutionSnapshot domain.Snapshot
	ExecutionDuration    time.Duration
	ConfirmationTime     time.Duration
}

// Ledger is the chain. Append is serialized: chain index and prev hash are
// a function of total order.
type Ledger struct {
	mu          sync.Mutex
	entries     []domain.AuditEntry
	byAction    map[string]int
	tip         string
	sealed      bool
	compromised error

	signer signature.Signer
	store  ports.LedgerStore
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	clock  ports.Clock
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore persists every appended entry and the seal flag.
func WithStore(store ports.LedgerStore) Option {
	return func(l *Ledger) {
		l.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(l *Ledger) {
		l.hooks = hooks
	}
}

// WithClock sets the clock used for hook timestamps.
func WithClock(c ports.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// New creates an empty, unsealed ledger.
func New(signer signature.Signer, opts ...Option) *Ledger {
	l := &Ledger{
		byAction: make(map[string]int),
		tip:      Genesis,
		signer:   signer,
		logger:   logging.NewNop(),
		clock:    ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open loads the entries held by store and verifies the whole chain.
// When verification fails the ledger is still returned, marked compromised,
// together with the *domain.ChainIntegrityError: entries stay readable for
// forensics but appends are refused.
func Open(ctx context.Context, signer signature.Signer, store ports.LedgerStore, opts ...Option) (*Ledger, error) {
	l := New(signer, append(opts, WithStore(store))...)

	entries, err := store.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	sealed, err := store.Sealed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load seal flag: %w", err)
	}

	l.entries = entries
	l.sealed = sealed
	for i, e := range entries {
		l.byAction[e.ActionID] = i
	}
	if n := len(entries); n > 0 {
		l.tip = entries[n-1].OwnHash
	}

	if err := l.VerifyChainIntegrity(ctx); err != nil {
		return l, err
	}
	l.logger.InfoContext(ctx, "ledger opened", "entries", len(entries), "sealed", sealed)
	return l, nil
}

// Append chains a new entry for rec and returns a copy of it.
func (l *Ledger) Append(ctx context.Context, rec Record) (domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		err := &domain.SealedLedgerError{ActionID: rec.ActionID}
		l.logger.ErrorContext(ctx, "append on sealed ledger", "action_id", rec.ActionID, "err", err)
		l.denied(ctx, rec.ActionID, err)
		return domain.AuditEntry{}, err
	}
	if l.compromised != nil {
		l.logger.ErrorContext(ctx, "append on compromised ledger", "action_id", rec.ActionID, "err", l.compromised)
		l.denied(ctx, rec.ActionID, l.compromised)
		return domain.AuditEntry{}, l.compromised
	}
	if _, dup := l.byAction[nfc(rec.ActionID)]; dup {
		err := fmt.Errorf("%w: %s", ErrDuplicateEntry, rec.ActionID)
		l.denied(ctx, rec.ActionID, err)
		return domain.AuditEntry{}, err
	}

	entry := domain.AuditEntry{
		ActionID:             rec.ActionID,
		ExecutedAt:           rec.ExecutedAt,
		ContextID:            rec.Context.ID,
		SourceHash:           rec.Context.SourceHash,
		TransitionPath:       append([]domain.TransitionRecord(nil), rec.TransitionPath...),
		PreExecutionSnapshot: rec.PreExecutionSnapshot.Clone(),
		ExecutionDuration:    rec.ExecutionDuration,
		ConfirmationTime:     rec.ConfirmationTime,
		PrevHash:             l.tip,
		ChainIndex:           len(l.entries),
	}
	if err := normalizeEntry(&entry); err != nil {
		l.logger.ErrorContext(ctx, "snapshot rejected", "action_id", rec.ActionID, "err", err)
		return domain.AuditEntry{}, err
	}

	payload, err := canonicalPayload(entry)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("failed to encode entry: %w", err)
	}
	bundle, err := l.signer.Sign(payload)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("failed to sign entry: %w", err)
	}
	entry.Signature = bundle
	entry.OwnHash = bundle.Digest
	entry.Sealed = true

	if l.store != nil {
		if err := l.store.Append(ctx, entry); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("failed to persist entry: %w", err)
		}
	}

	l.entries = append(l.entries, entry)
	l.byAction[entry.ActionID] = entry.ChainIndex
	l.tip = entry.OwnHash

	l.logger.InfoContext(ctx, "entry appended",
		"action_id", entry.ActionID,
		"chain_index", entry.ChainIndex,
		"own_hash", entry.OwnHash,
	)
	if l.hooks.OnAppend != nil {
		l.hooks.OnAppend(ctx, &domain.LedgerEvent{
			Timestamp:  l.clock.Now(),
			ActionID:   entry.ActionID,
			ChainIndex: entry.ChainIndex,
		})
	}
	return entry.Clone(), nil
}

func (l *Ledger) denied(ctx context.Context, actionID string, err error) {
	if l.hooks.OnAppendDenied != nil {
		l.hooks.OnAppendDenied(ctx, &domain.LedgerEvent{
			Timestamp:  l.clock.Now(),
			ActionID:   actionID,
			ChainIndex: -1,
			Err:        err,
		})
	}
}

// Seal makes the ledger read-only. It cannot be undone.
func (l *Ledger) Seal(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return nil
	}
	if l.store != nil {
		if err := l.store.Seal(ctx); err != nil {
			return fmt.Errorf("failed to persist seal: %w", err)
		}
	}
	l.sealed = true
	l.logger.InfoContext(ctx, "ledger sealed", "entries", len(l.entries), "tip", l.tip)
	return nil
}

// Sealed reports whether Seal has been called.
func (l *Ledger) Sealed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealed
}

// VerifyChainIntegrity recomputes the whole chain in order. It returns nil or
// the *domain.ChainIntegrityError of the first divergent entry. A violation
// marks the ledger compromised: appends are refused until an operator
// resolves it, and the failure is never retried silently.
func (l *Ledger) VerifyChainIntegrity(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := VerifyEntries(l.signer, l.entries)
	if err != nil {
		l.compromised = err
		l.logger.ErrorContext(ctx, "ledger integrity violation", "err", err)
	}
	return err
}

// VerifyEntries checks a full sequence of entries, for example an export.
// Integrity is a property of the sequence, never of one entry alone.
func VerifyEntries(signer signature.Signer, entries []domain.AuditEntry) error {
	prev := Genesis
	for i, e := range entries {
		violation := func(format string, args ...any) error {
			return &domain.ChainIntegrityError{Index: i, ActionID: e.ActionID, Reason: fmt.Sprintf(format, args...)}
		}

		if e.ChainIndex != i {
			return violation("chain index is %d, expected %d", e.ChainIndex, i)
		}
		if e.PrevHash != prev {
			return violation("prev_hash does not link to the previous entry")
		}
		if !e.Sealed {
			return violation("entry is not sealed")
		}
		if e.OwnHash != e.Signature.Digest {
			return violation("own_hash does not match the signature digest")
		}
		if field := unnormalized(e); field != "" {
			return violation("%s is not in NFC form", field)
		}

		payload, err := canonicalPayload(e)
		if err != nil {
			return violation("cannot encode entry: %v", err)
		}
		ok, err := signer.Verify(payload, e.Signature)
		if err != nil {
			return violation("cannot verify signature: %v", err)
		}
		if !ok {
			return violation("recomputed digest diverges from stored digest")
		}
		prev = e.OwnHash
	}
	return nil
}

// Entries returns copies of every entry in chain order.
func (l *Ledger) Entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AuditEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out
}

// Entry returns a copy of the entry recorded for actionID.
func (l *Ledger) Entry(actionID string) (domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.byAction[nfc(actionID)]
	if !ok {
		return domain.AuditEntry{}, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, actionID)
	}
	return l.entries[i].Clone(), nil
}

// Tip returns the digest of the most recent entry, or Genesis.
func (l *Ledger) Tip() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
