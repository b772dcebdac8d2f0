package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotClone_IsDeep(t *testing.T) {
	orig := Snapshot{
		"nested": map[string]any{"list": []any{"a", map[string]any{"x": 1}}},
		"tags":   []string{"t1"},
		"raw":    []byte("ab"),
		"inner":  Snapshot{"k": "v"},
		"gone":   nil,
	}
	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp["nested"].(map[string]any)["list"].([]any)[1].(map[string]any)["x"] = 2
	cp["tags"].([]string)[0] = "changed"
	cp["raw"].([]byte)[0] = 'z'
	cp["inner"].(Snapshot)["k"] = "changed"

	assert.Equal(t, 1, orig["nested"].(map[string]any)["list"].([]any)[1].(map[string]any)["x"])
	assert.Equal(t, "t1", orig["tags"].([]string)[0])
	assert.Equal(t, []byte("ab"), orig["raw"])
	assert.Equal(t, "v", orig["inner"].(Snapshot)["k"])

	var empty Snapshot
	assert.Nil(t, empty.Clone())
	assert.ElementsMatch(t, []string{"nested", "tags", "raw", "inner", "gone"}, orig.Keys())
}

type point struct {
	Labels []string
	Next   *point
	hidden int
}

func TestSnapshotClone_CopiesTypedValues(t *testing.T) {
	orig := Snapshot{
		"ints":   []int{1, 2},
		"counts": map[string]int{"v": 1},
		"grid":   [2][]int{{1}, {2}},
		"point":  &point{Labels: []string{"a"}, Next: &point{Labels: []string{"b"}}, hidden: 7},
		"byKey":  map[string][]any{"k": {map[string]any{"x": 1}}},
	}
	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp["ints"].([]int)[0] = 99
	cp["counts"].(map[string]int)["v"] = 99
	grid := cp["grid"].([2][]int)
	grid[0][0] = 99
	cp["point"].(*point).Labels[0] = "changed"
	cp["point"].(*point).Next.Labels[0] = "changed"
	cp["byKey"].(map[string][]any)["k"][0].(map[string]any)["x"] = 99

	assert.Equal(t, []int{1, 2}, orig["ints"])
	assert.Equal(t, map[string]int{"v": 1}, orig["counts"])
	assert.Equal(t, 1, orig["grid"].([2][]int)[0][0])
	assert.Equal(t, "a", orig["point"].(*point).Labels[0])
	assert.Equal(t, "b", orig["point"].(*point).Next.Labels[0])
	assert.Equal(t, 7, cp["point"].(*point).hidden)
	assert.Equal(t, 1, orig["byKey"].(map[string][]any)["k"][0].(map[string]any)["x"])
}

func TestDecodeJSON_KeepsLargeIntegers(t *testing.T) {
	var s Snapshot
	require.NoError(t, DecodeJSON([]byte(`{"ns":1760000000123456789,"f":0.5}`), &s))
	assert.Equal(t, json.Number("1760000000123456789"), s["ns"])
	assert.Equal(t, json.Number("0.5"), s["f"])
}

func TestAuditEntryClone(t *testing.T) {
	e := AuditEntry{
		TransitionPath:       []TransitionRecord{{Event: EventShow}},
		PreExecutionSnapshot: Snapshot{"k": "v"},
		Signature:            SignatureBundle{Parallel: &ParallelDigest{Digest: "p"}},
	}
	cp := e.Clone()
	cp.TransitionPath[0].Event = EventReject
	cp.PreExecutionSnapshot["k"] = "x"
	cp.Signature.Parallel.Digest = "q"

	assert.Equal(t, EventShow, e.TransitionPath[0].Event)
	assert.Equal(t, "v", e.PreExecutionSnapshot["k"])
	assert.Equal(t, "p", e.Signature.Parallel.Digest)
}

func TestCheckpointClone(t *testing.T) {
	c := Checkpoint{Snapshot: Snapshot{"k": "v"}, Metadata: map[string]string{"m": "1"}}
	cp := c.Clone()
	cp.Snapshot["k"] = "x"
	cp.Metadata["m"] = "2"
	assert.Equal(t, "v", c.Snapshot["k"])
	assert.Equal(t, "1", c.Metadata["m"])
}

func TestContextMatches(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewContext("f1", "h1", at)

	assert.True(t, a.Matches(NewContext("f1", "h1", at.Add(time.Hour))), "capture time is not identity")
	assert.False(t, a.Matches(NewContext("f1", "h2", at)))
	assert.False(t, a.Matches(NewContext("f2", "h1", at)))
	assert.Equal(t, "f1@h1", a.String())
}

func TestStateIsTerminal(t *testing.T) {
	terminal := map[State]bool{StateAuthorized: true, StateExpired: true, StateRejected: true}
	for _, s := range States {
		assert.Equal(t, terminal[s], s.IsTerminal(), s)
	}
}

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{&InvalidTransitionError{ActionID: "a", State: StateVisible, Event: EventConfirm}, ErrInvalidTransition},
		{&StaleContextError{ActionID: "a"}, ErrStaleContext},
		{&ChainIntegrityError{Index: 2, ActionID: "a", Reason: "hash"}, ErrChainIntegrity},
		{&SealedLedgerError{ActionID: "a"}, ErrSealedLedger},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("outer: %w", tt.err)
		assert.ErrorIs(t, wrapped, tt.sentinel)
		assert.NotErrorIs(t, wrapped, ErrCheckpointNotFound)
	}

	var integrity *ChainIntegrityError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", tests[2].err), &integrity))
	assert.Equal(t, 2, integrity.Index)
	assert.Contains(t, tests[0].err.Error(), `"confirm"`)
	assert.Contains(t, tests[3].err.Error(), ErrSealedLedger.Error())
}

func TestLifecycleHooksMerge(t *testing.T) {
	var calls []string
	a := LifecycleHooks{OnAppend: func(context.Context, *LedgerEvent) { calls = append(calls, "a") }}
	b := LifecycleHooks{
		OnAppend: func(context.Context, *LedgerEvent) { calls = append(calls, "b") },
		OnUndo:   func(context.Context, *UndoEvent) { calls = append(calls, "undo") },
	}

	merged := a.Merge(b)
	merged.OnAppend(context.Background(), &LedgerEvent{})
	merged.OnUndo(context.Background(), &UndoEvent{})
	assert.Nil(t, merged.OnTransition)
	assert.Equal(t, []string{"a", "b", "undo"}, calls)
}
