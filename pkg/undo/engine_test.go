package undo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/authgate/internal/testutils"
	"github.com/aretw0/authgate/pkg/adapters/memory"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingWorkspace wraps a workspace and fails every write.
type failingWorkspace struct {
	*memory.Workspace
}

func (f failingWorkspace) Write(ctx context.Context, values domain.Snapshot) error {
	return errors.New("disk full")
}

func newEngine(t *testing.T, seed domain.Snapshot) (*Engine, *memory.Workspace) {
	t.Helper()
	ws := memory.NewWorkspace(seed)
	return New(memory.NewCheckpointStore(), ws, WithClock(testutils.NewFakeClock(testutils.Epoch))), ws
}

func TestUndo_MissingCheckpoint(t *testing.T) {
	e, _ := newEngine(t, nil)

	res := e.Undo(context.Background(), "missing-id")

	assert.False(t, res.OK)
	assert.Equal(t, "missing-id", res.ActionID)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, domain.ErrCheckpointNotFound)
	assert.Contains(t, res.Err.Error(), "missing-id")
	assert.Empty(t, e.History())
}

func TestUndo_RestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	e, ws := newEngine(t, domain.Snapshot{"volume": 3})

	_, err := e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"volume": 3, "muted": nil}, map[string]string{"by": "test"})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, domain.Snapshot{"volume": 9, "muted": true}))

	res := e.Undo(ctx, "a1")

	require.True(t, res.OK, "%v", res.Err)
	assert.Equal(t, domain.Snapshot{"volume": 3}, ws.All())
	require.Len(t, e.History(), 1)
	assert.Equal(t, testutils.Epoch, e.History()[0].At)
}

func TestCheckpoint_IsDeepCopy(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	snap := domain.Snapshot{
		"list": []any{"a"},
		"tags": []int{1, 2},
		"meta": map[string]int{"v": 1},
	}
	meta := map[string]string{"k": "v"}

	_, err := e.CreateCheckpoint(ctx, "a1", snap, meta)
	require.NoError(t, err)
	snap["list"].([]any)[0] = "mutated"
	snap["tags"].([]int)[0] = 99
	snap["meta"].(map[string]int)["v"] = 99
	meta["k"] = "mutated"

	cp, err := e.Checkpoint(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, cp.Snapshot["list"])
	assert.Equal(t, []int{1, 2}, cp.Snapshot["tags"])
	assert.Equal(t, map[string]int{"v": 1}, cp.Snapshot["meta"])
	assert.Equal(t, "v", cp.Metadata["k"])
}

func TestCheckpoint_Duplicate(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	_, err := e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"x": 1}, nil)
	require.NoError(t, err)
	_, err = e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"x": 2}, nil)
	assert.Error(t, err)
}

func TestUndo_IsolatedPerAction(t *testing.T) {
	ctx := context.Background()
	e, ws := newEngine(t, domain.Snapshot{"a": "a0", "b": "b0"})

	_, err := e.CreateCheckpoint(ctx, "act-a", domain.Snapshot{"a": "a0"}, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, domain.Snapshot{"a": "a1"}))

	_, err = e.CreateCheckpoint(ctx, "act-b", domain.Snapshot{"b": "b0"}, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, domain.Snapshot{"b": "b1"}))

	res := e.Undo(ctx, "act-a")
	require.True(t, res.OK)

	assert.Equal(t, domain.Snapshot{"a": "a0", "b": "b1"}, ws.All())
}

func TestUndo_FailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	ws := memory.NewWorkspace(domain.Snapshot{"volume": 9})
	var events []*domain.UndoEvent
	e := New(memory.NewCheckpointStore(), failingWorkspace{ws}, WithHooks(domain.LifecycleHooks{
		OnUndo: func(_ context.Context, ev *domain.UndoEvent) { events = append(events, ev) },
	}))
	_, err := e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"volume": 3}, nil)
	require.NoError(t, err)

	res := e.Undo(ctx, "a1")

	assert.False(t, res.OK)
	assert.Error(t, res.Err)
	assert.Equal(t, domain.Snapshot{"volume": 9}, ws.All())
	assert.Empty(t, e.History())
	assert.False(t, e.CanRedo())
	require.Len(t, events, 1)
	assert.Error(t, events[0].Err)
}

func TestRedo_IsPartialAndSingleStep(t *testing.T) {
	ctx := context.Background()
	e, ws := newEngine(t, domain.Snapshot{"volume": 3})
	_, err := e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"volume": 3, "muted": nil}, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, domain.Snapshot{"volume": 9, "muted": true}))

	require.True(t, e.Undo(ctx, "a1").OK)
	require.True(t, e.CanRedo())

	res := e.Redo(ctx)
	require.True(t, res.OK)
	assert.True(t, res.Partial)
	assert.Equal(t, "a1", res.ActionID)
	assert.Equal(t, domain.Snapshot{"volume": 9, "muted": true}, ws.All())

	again := e.Redo(ctx)
	assert.False(t, again.OK)
	assert.ErrorIs(t, again.Err, ErrNothingToRedo)
}

func TestUndo_ClearsRedoStack(t *testing.T) {
	ctx := context.Background()
	e, ws := newEngine(t, domain.Snapshot{"a": 0, "b": 0})
	_, err := e.CreateCheckpoint(ctx, "act-a", domain.Snapshot{"a": 0}, nil)
	require.NoError(t, err)
	_, err = e.CreateCheckpoint(ctx, "act-b", domain.Snapshot{"b": 0}, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, domain.Snapshot{"a": 1, "b": 1}))

	require.True(t, e.Undo(ctx, "act-a").OK)
	require.True(t, e.Undo(ctx, "act-b").OK)

	res := e.Redo(ctx)
	require.True(t, res.OK)
	assert.Equal(t, "act-b", res.ActionID)
	assert.False(t, e.CanRedo(), "the earlier undo is no longer redoable")
	assert.Equal(t, domain.Snapshot{"a": 0, "b": 1}, ws.All())
	assert.Len(t, e.History(), 2)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	_, err := e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"x": 1}, nil)
	require.NoError(t, err)

	require.NoError(t, e.Purge(ctx, "a1"))

	res := e.Undo(ctx, "a1")
	assert.ErrorIs(t, res.Err, domain.ErrCheckpointNotFound)
}

func TestUndo_SameActionSerialized(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, domain.Snapshot{"x": 1})
	_, err := e.CreateCheckpoint(ctx, "a1", domain.Snapshot{"x": 0}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, e.Undo(ctx, "a1").OK)
		}()
	}
	wg.Wait()

	history := e.History()
	require.Len(t, history, 16)
	first := 0
	for _, f := range history {
		if f.Before["x"] == 1 {
			first++
		}
	}
	assert.Equal(t, 1, first, "only one undo can observe the pre-undo value")
}
