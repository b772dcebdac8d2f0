package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/authgate/pkg/adapters/memory"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStore_Contract(t *testing.T) {
	ports.RunLedgerStoreContract(t, memory.NewLedgerStore())
}

func TestCheckpointStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, memory.NewCheckpointStore())
}

func TestWorkspace_Contract(t *testing.T) {
	ports.RunWorkspaceContract(t, memory.NewWorkspace(nil))
}

func TestWorkspace_SeedIsCopied(t *testing.T) {
	seed := domain.Snapshot{"tags": []any{"a"}}
	ws := memory.NewWorkspace(seed)
	seed["tags"].([]any)[0] = "changed"

	got, err := ws.Read(context.Background(), []string{"tags"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, got["tags"])
	assert.Equal(t, domain.Snapshot{"tags": []any{"a"}}, ws.All())
}
