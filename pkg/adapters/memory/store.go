package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/authgate/pkg/domain"
)

// LedgerStore implements ports.LedgerStore in memory.
// Safe for concurrent use.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	sealed  bool
}

// NewLedgerStore creates an empty, unsealed store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Append stores a copy of entry at the tail.
func (s *LedgerStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// Entries returns copies of every entry in order.
func (s *LedgerStore) Entries(ctx context.Context) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// Seal records the seal flag.
func (s *LedgerStore) Seal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	return nil
}

// Sealed reports the seal flag.
func (s *LedgerStore) Sealed(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed, nil
}

// Tamper applies fn to the stored entry at index. It exists so tests and
// drills can simulate an attacker with write access to storage.
func (s *LedgerStore) Tamper(index int, fn func(*domain.AuditEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.entries[index])
}

// CheckpointStore implements ports.CheckpointStore in memory.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]domain.Checkpoint
}

// NewCheckpointStore creates an empty checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]domain.Checkpoint),
	}
}

// Put stores a deep copy of cp.
func (s *CheckpointStore) Put(ctx context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[cp.ActionID]; exists {
		return fmt.Errorf("checkpoint for %s already exists", cp.ActionID)
	}
	s.data[cp.ActionID] = cp.Clone()
	return nil
}

// Get returns a copy so callers cannot mutate the stored checkpoint.
func (s *CheckpointStore) Get(ctx context.Context, actionID string) (domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.data[actionID]
	if !ok {
		return domain.Checkpoint{}, fmt.Errorf("%w: %s", domain.ErrCheckpointNotFound, actionID)
	}
	return cp.Clone(), nil
}

// Delete removes the checkpoint.
func (s *CheckpointStore) Delete(ctx context.Context, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, actionID)
	return nil
}

// List returns the ids with checkpoints.
func (s *CheckpointStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// Workspace implements ports.Workspace in memory.
type Workspace struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewWorkspace creates a workspace seeded with a copy of initial.
func NewWorkspace(initial domain.Snapshot) *Workspace {
	values := make(map[string]any, len(initial))
	for k, v := range initial.Clone() {
		values[k] = v
	}
	return &Workspace{values: values}
}

// Read returns copies of the values present for keys.
func (w *Workspace) Read(ctx context.Context, keys []string) (domain.Snapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(domain.Snapshot, len(keys))
	for _, k := range keys {
		if v, ok := w.values[k]; ok {
			out[k] = v
		}
	}
	return out.Clone(), nil
}

// Write applies values under one lock, so it cannot partially fail.
func (w *Workspace) Write(ctx context.Context, values domain.Snapshot) error {
	values = values.Clone()
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, v := range values {
		if v == nil {
			delete(w.values, k)
			continue
		}
		w.values[k] = v
	}
	return nil
}

// All returns a copy of the whole workspace.
func (w *Workspace) All() domain.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return domain.Snapshot(w.values).Clone()
}
