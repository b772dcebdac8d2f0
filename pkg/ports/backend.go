package ports

import (
	"context"

	"github.com/aretw0/authgate/pkg/domain"
)

// AuthorizedAction is what the execution backend receives.
// It is a read-only description: the backend has no path back into the machine.
type AuthorizedAction struct {
	ID          string
	Description string
	Context     domain.Context
	Effect      domain.Snapshot
}

// ExecutionBackend performs the real-world effect of an authorized action.
// It is notified only when an action reaches the authorized terminal state.
type ExecutionBackend interface {
	// Snapshot returns the pre-execution state of everything the action will touch.
	Snapshot(ctx context.Context, action AuthorizedAction) (domain.Snapshot, error)

	// Execute performs the effect. It runs after the checkpoint and the ledger entry exist.
	Execute(ctx context.Context, action AuthorizedAction) error
}
