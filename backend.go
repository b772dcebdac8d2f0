package authgate

import (
	"context"
	"fmt"

	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ports"
)

// WorkspaceBackend executes an action by writing its Effect to a workspace.
// Its snapshot covers exactly the keys the effect writes, so undo restores
// only those keys.
type WorkspaceBackend struct {
	ws ports.Workspace
}

// NewWorkspaceBackend creates a backend over ws.
func NewWorkspaceBackend(ws ports.Workspace) *WorkspaceBackend {
	return &WorkspaceBackend{ws: ws}
}

// Snapshot reads the current values of the effect's keys. Absent keys are
// recorded as nil so that restoring the snapshot removes them again.
func (b *WorkspaceBackend) Snapshot(ctx context.Context, action ports.AuthorizedAction) (domain.Snapshot, error) {
	keys := action.Effect.Keys()
	current, err := b.ws.Read(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot workspace: %w", err)
	}
	for _, k := range keys {
		if _, ok := current[k]; !ok {
			current[k] = nil
		}
	}
	return current, nil
}

// Execute writes the effect.
func (b *WorkspaceBackend) Execute(ctx context.Context, action ports.AuthorizedAction) error {
	if len(action.Effect) == 0 {
		return nil
	}
	return b.ws.Write(ctx, action.Effect)
}
