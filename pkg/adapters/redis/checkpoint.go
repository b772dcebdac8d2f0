package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/authgate/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

func (s *Store) checkpointKey(actionID string) string {
	return s.prefix + "checkpoint:" + actionID
}

func (s *Store) checkpointIndexKey() string {
	return s.prefix + "checkpoint:index"
}

// Put stores the checkpoint. SET NX makes a second Put for the same id fail.
func (s *Store) Put(ctx context.Context, cp domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.checkpointKey(cp.ActionID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("checkpoint for %s already exists", cp.ActionID)
	}
	return s.client.SAdd(ctx, s.checkpointIndexKey(), cp.ActionID).Err()
}

// Get loads the checkpoint.
func (s *Store) Get(ctx context.Context, actionID string) (domain.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.checkpointKey(actionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.Checkpoint{}, fmt.Errorf("%w: %s", domain.ErrCheckpointNotFound, actionID)
		}
		return domain.Checkpoint{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var cp domain.Checkpoint
	if err := domain.DecodeJSON([]byte(val), &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, actionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.checkpointKey(actionID))
	pipe.SRem(ctx, s.checkpointIndexKey(), actionID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the ids with checkpoints.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.checkpointIndexKey()).Result()
}
