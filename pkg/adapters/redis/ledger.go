package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/authgate/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

func (s *Store) entriesKey() string {
	return s.prefix + "ledger:entries"
}

func (s *Store) sealedKey() string {
	return s.prefix + "ledger:sealed"
}

// Append pushes the entry to the tail of the ledger list.
func (s *Store) Append(ctx context.Context, entry domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.entriesKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to append to redis: %w", err)
	}
	return nil
}

// Entries returns every entry in list order.
func (s *Store) Entries(ctx context.Context) ([]domain.AuditEntry, error) {
	vals, err := s.client.LRange(ctx, s.entriesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger from redis: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(vals))
	for i, val := range vals {
		var e domain.AuditEntry
		if err := domain.DecodeJSON([]byte(val), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Seal records the seal flag.
func (s *Store) Seal(ctx context.Context) error {
	return s.client.Set(ctx, s.sealedKey(), "1", 0).Err()
}

// Sealed reports the seal flag.
func (s *Store) Sealed(ctx context.Context) (bool, error) {
	err := s.client.Get(ctx, s.sealedKey()).Err()
	if err == backend.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read seal flag: %w", err)
	}
	return true, nil
}
