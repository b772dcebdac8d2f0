package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/aretw0/authgate/internal/config"
	"github.com/aretw0/authgate/pkg/adapters/memory"
	"github.com/aretw0/authgate/pkg/adapters/redis"
	"github.com/aretw0/authgate/pkg/adapters/sqlite"
	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/aretw0/authgate/pkg/persistence/middleware"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/aretw0/authgate/pkg/signature"
)

// stores is the persistence selected by ledger.backend.
// workspace and locker are nil unless the backend provides them.
type stores struct {
	ledger      ports.LedgerStore
	checkpoints ports.CheckpointStore
	workspace   ports.Workspace
	locker      ports.DistributedLocker
	close       func() error
}

func openStores(ctx context.Context, c config.Config) (*stores, error) {
	st, err := openBackend(ctx, c)
	if err != nil {
		return nil, err
	}
	if c.Checkpoint.EncryptionKey == "" {
		return st, nil
	}
	mw, err := checkpointEncryption(c.Checkpoint)
	if err != nil {
		st.close()
		return nil, err
	}
	st.checkpoints = middleware.Chain(st.checkpoints, mw)
	return st, nil
}

func checkpointEncryption(c config.CheckpointConfig) (middleware.Middleware, error) {
	active, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.encryption_key: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range c.FallbackKeys {
		key, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("checkpoint.fallback_keys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return middleware.NewEncryptionMiddleware(enc)
}

func openBackend(ctx context.Context, c config.Config) (*stores, error) {
	switch c.Ledger.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, c.Ledger.Path)
		if err != nil {
			return nil, err
		}
		return &stores{ledger: s, checkpoints: s, close: s.Close}, nil
	case config.BackendRedis:
		s := redis.New(c.Redis.Addr, c.Redis.Password, c.Redis.DB, redis.WithPrefix(c.Redis.Prefix))
		if err := s.Client().Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis %s: %w", c.Redis.Addr, err)
		}
		return &stores{
			ledger:      s,
			checkpoints: s,
			workspace:   s,
			locker:      redis.NewLocker(s.Client(), s.Prefix()),
			close:       s.Close,
		}, nil
	default:
		return &stores{
			ledger:      memory.NewLedgerStore(),
			checkpoints: memory.NewCheckpointStore(),
			close:       func() error { return nil },
		}, nil
	}
}

func newProvider(c config.Config) (*signature.Provider, error) {
	return signature.NewProvider(signature.WithVersion(c.Ledger.SignatureVersion))
}

// openLedger loads and verifies the configured ledger. On an integrity
// violation the ledger is still returned, with the error.
func openLedger(ctx context.Context, c config.Config, opts ...ledger.Option) (*ledger.Ledger, *stores, error) {
	st, err := openStores(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	provider, err := newProvider(c)
	if err != nil {
		st.close()
		return nil, nil, err
	}
	opts = append([]ledger.Option{ledger.WithLogger(logger)}, opts...)
	l, err := ledger.Open(ctx, provider, st.ledger, opts...)
	if l == nil {
		st.close()
		return nil, nil, err
	}
	return l, st, err
}
