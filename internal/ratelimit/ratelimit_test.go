package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestReservationLimiterDeniesAfterBurst(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)

	cfg := config.Config{Redis: config.RedisConfig{ReserveRate: 0.001, ReserveBurst: 2}}
	limiter := NewReservationLimiter(client, cfg)
	require.NotNil(t, limiter)

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, 7)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
	}

	res, err := limiter.Allow(ctx, 7)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	other, err := limiter.Allow(ctx, 8)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *ReservationLimiter
	res, err := limiter.Allow(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Nil(t, NewReservationLimiter(nil, config.Config{}))
}

func TestSettlementLockerCoalesces(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)

	locker := NewSettlementLocker(client, config.Config{Redis: config.RedisConfig{SettlementLockTTL: time.Minute}})
	require.NotNil(t, locker)

	release, ok, err := locker.Acquire(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, "pay-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.Acquire(ctx, "pay-2")
	require.NoError(t, err)
	assert.True(t, ok)

	release()
	assert.False(t, mr.Exists("settle:pay-1"))

	_, ok, err = locker.Acquire(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSettlementLockExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	locker := NewSettlementLocker(client, config.Config{Redis: config.RedisConfig{SettlementLockTTL: time.Second}})

	_, ok, err := locker.Acquire(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.Acquire(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaleReleaseKeepsNewerLock(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	locker := NewSettlementLocker(client, config.Config{Redis: config.RedisConfig{SettlementLockTTL: time.Second}})

	releaseFirst, ok, err := locker.Acquire(ctx, "pay-2")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.Acquire(ctx, "pay-2")
	require.NoError(t, err)
	require.True(t, ok)

	releaseFirst()
	assert.True(t, mr.Exists("settle:pay-2"))
}
