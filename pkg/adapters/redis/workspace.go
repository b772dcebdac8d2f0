package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/authgate/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

func (s *Store) workspaceKey() string {
	return s.prefix + "workspace"
}

// Read returns the JSON-decoded values present for keys.
func (s *Store) Read(ctx context.Context, keys []string) (domain.Snapshot, error) {
	out := make(domain.Snapshot, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := s.client.HMGet(ctx, s.workspaceKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace from redis: %w", err)
	}
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v any
		if err := domain.DecodeJSON([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %q: %w", keys[i], err)
		}
		out[keys[i]] = v
	}
	return out, nil
}

// Write applies values in one MULTI/EXEC transaction.
func (s *Store) Write(ctx context.Context, values domain.Snapshot) error {
	set := make(map[string]any, len(values))
	var del []string
	for k, v := range values {
		if v == nil {
			del = append(del, k)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %q: %w", k, err)
		}
		set[k] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, s.workspaceKey(), set)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, s.workspaceKey(), del...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write workspace to redis: %w", err)
	}
	return nil
}
