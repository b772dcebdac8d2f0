package ports

import (
	"context"

	"github.com/aretw0/authgate/pkg/domain"
)

// LedgerStore persists sealed audit entries.
// Entries must be returned in the order they were appended.
type LedgerStore interface {
	// Append persists one entry at the tail.
	Append(ctx context.Context, entry domain.AuditEntry) error

	// Entries returns every persisted entry in chain order.
	Entries(ctx context.Context) ([]domain.AuditEntry, error)

	// Seal records the one-way seal flag.
	Seal(ctx context.Context) error

	// Sealed reports whether Seal has been recorded.
	Sealed(ctx context.Context) (bool, error)
}

// CheckpointStore persists checkpoints keyed by action id.
type CheckpointStore interface {
	// Put stores the checkpoint. Storing a second checkpoint for the same id is an error.
	Put(ctx context.Context, cp domain.Checkpoint) error

	// Get returns the checkpoint or domain.ErrCheckpointNotFound.
	Get(ctx context.Context, actionID string) (domain.Checkpoint, error)

	// Delete purges the checkpoint. Deleting a missing id is not an error.
	Delete(ctx context.Context, actionID string) error

	// List returns the action ids that have checkpoints.
	List(ctx context.Context) ([]string, error)
}

// Workspace is the keyed state that actions affect and undo restores.
type Workspace interface {
	// Read returns the current values for keys. Missing keys are omitted.
	Read(ctx context.Context, keys []string) (domain.Snapshot, error)

	// Write replaces the given keys. A nil value removes the key.
	// It must be all-or-nothing: on error no key changes.
	Write(ctx context.Context, values domain.Snapshot) error
}
