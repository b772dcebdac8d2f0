package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/authgate/pkg/adapters/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewLocker(client, "test:"), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	unlock, err := locker.Lock(ctx, "a1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:a1"))
	assert.Equal(t, 5*time.Second, mr.TTL("test:lock:a1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:a1"))
}

func TestRedisLocker_ContendedLockWaitsForContext(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	unlock, err := locker.Lock(ctx, "a1", 5*time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = locker.Lock(waitCtx, "a1", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	// Other keys are independent.
	other, err := locker.Lock(ctx, "a2", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := locker.Lock(ctx, "a1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	unlockOld, err := locker.Lock(ctx, "a1", time.Second)
	require.NoError(t, err)

	// The old holder's TTL lapses and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	unlockNew, err := locker.Lock(ctx, "a1", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("test:lock:a1"), "stale unlock must not release the new holder")

	require.NoError(t, unlockNew(ctx))
	assert.False(t, mr.Exists("test:lock:a1"))
}
