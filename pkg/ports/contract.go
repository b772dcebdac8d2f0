package ports

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/aretw0/authgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLedgerStoreContract verifies that a LedgerStore implementation adheres to the interface contract.
// The store must be empty and unsealed.
func RunLedgerStoreContract(t *testing.T, store LedgerStore) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := func(i int) domain.AuditEntry {
		return domain.AuditEntry{
			ActionID:   fmt.Sprintf("contract-action-%d", i),
			ExecutedAt: at.Add(time.Duration(i) * time.Second),
			ContextID:  "ctx",
			SourceHash: "hash",
			TransitionPath: []domain.TransitionRecord{
				{Event: domain.EventShow, From: domain.StateGenerated, To: domain.StateVisible, At: at},
			},
			PreExecutionSnapshot: domain.Snapshot{"key": "value"},
			ExecutionDuration:    2 * time.Second,
			ConfirmationTime:     time.Second,
			PrevHash:             fmt.Sprintf("prev-%d", i),
			OwnHash:              fmt.Sprintf("own-%d", i),
			ChainIndex:           i,
			Sealed:               true,
			Signature:            domain.SignatureBundle{Version: 1, Algorithm: "sha256", Digest: fmt.Sprintf("own-%d", i)},
		}
	}

	t.Run("Empty", func(t *testing.T) {
		entries, err := store.Entries(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)

		sealed, err := store.Sealed(ctx)
		require.NoError(t, err)
		assert.False(t, sealed)
	})

	t.Run("Append preserves order and fields", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Append(ctx, entry(i)))
		}

		entries, err := store.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, got := range entries {
			want := entry(i)
			assert.Equal(t, want.ActionID, got.ActionID)
			assert.Equal(t, want.ChainIndex, got.ChainIndex)
			assert.Equal(t, want.PrevHash, got.PrevHash)
			assert.Equal(t, want.OwnHash, got.OwnHash)
			assert.Equal(t, want.Signature, got.Signature)
			assert.True(t, want.ExecutedAt.Equal(got.ExecutedAt), "executed_at must survive persistence")
			assert.Equal(t, want.ExecutionDuration, got.ExecutionDuration)
			assert.Equal(t, "value", got.PreExecutionSnapshot["key"])
			require.Len(t, got.TransitionPath, 1)
			assert.Equal(t, domain.StateVisible, got.TransitionPath[0].To)
		}
	})

	t.Run("Seal is recorded", func(t *testing.T) {
		require.NoError(t, store.Seal(ctx))
		sealed, err := store.Sealed(ctx)
		require.NoError(t, err)
		assert.True(t, sealed)
	})
}

// RunCheckpointStoreContract verifies that a CheckpointStore implementation adheres to the interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	cp := domain.Checkpoint{
		ActionID:  "contract-cp",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Snapshot:  domain.Snapshot{"volume": "low", "nested": map[string]any{"a": "b"}},
		Metadata:  map[string]string{"source": "contract"},
	}

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Put and Get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, cp))

		got, err := store.Get(ctx, cp.ActionID)
		require.NoError(t, err)
		assert.Equal(t, cp.ActionID, got.ActionID)
		assert.True(t, cp.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, "low", got.Snapshot["volume"])
		assert.Equal(t, map[string]any{"a": "b"}, got.Snapshot["nested"])
		assert.Equal(t, "contract", got.Metadata["source"])
	})

	t.Run("Put twice is rejected", func(t *testing.T) {
		assert.Error(t, store.Put(ctx, cp))
	})

	t.Run("Returned checkpoint is isolated", func(t *testing.T) {
		got, err := store.Get(ctx, cp.ActionID)
		require.NoError(t, err)
		got.Snapshot["volume"] = "tampered"

		again, err := store.Get(ctx, cp.ActionID)
		require.NoError(t, err)
		assert.Equal(t, "low", again.Snapshot["volume"])
	})

	t.Run("List and Delete", func(t *testing.T) {
		second := cp
		second.ActionID = "contract-cp-2"
		require.NoError(t, store.Put(ctx, second))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"contract-cp", "contract-cp-2"}, ids)

		require.NoError(t, store.Delete(ctx, cp.ActionID))
		require.NoError(t, store.Delete(ctx, "never-existed"))

		_, err = store.Get(ctx, cp.ActionID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})
}

// RunWorkspaceContract verifies that a Workspace implementation adheres to the interface contract.
func RunWorkspaceContract(t *testing.T, ws Workspace) {
	ctx := context.Background()

	t.Run("Read missing keys", func(t *testing.T) {
		got, err := ws.Read(ctx, []string{"nope"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Write and Read", func(t *testing.T) {
		require.NoError(t, ws.Write(ctx, domain.Snapshot{"a": "1", "b": "2"}))

		got, err := ws.Read(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, domain.Snapshot{"a": "1", "b": "2"}, got)
	})

	t.Run("Write only touches given keys", func(t *testing.T) {
		require.NoError(t, ws.Write(ctx, domain.Snapshot{"a": "3"}))

		got, err := ws.Read(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, domain.Snapshot{"a": "3", "b": "2"}, got)
	})

	t.Run("Nil removes key", func(t *testing.T) {
		require.NoError(t, ws.Write(ctx, domain.Snapshot{"a": nil, "b": "4"}))

		got, err := ws.Read(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, domain.Snapshot{"b": "4"}, got)
	})
}
