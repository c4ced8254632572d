package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/clock"
	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisLimiter_ThreeTokenScenario(t *testing.T) {
	_, client := setupTestRedis(t)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	limiter, err := NewRedisLimiter(client, threePerSecond, clk, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	want := []bool{true, true, true, false}
	for i, allowed := range want {
		res, err := limiter.Check(ctx, "scope")
		require.NoError(t, err)
		assert.Equal(t, allowed, res.Allowed, "update %d", i+1)
	}

	clk.Advance(time.Second)
	res, err := limiter.Check(ctx, "scope")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "scope")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
}

func TestRedisLimiter_KeysAreIsolatedAndExpire(t *testing.T) {
	mr, client := setupTestRedis(t)
	clk := clock.NewFake(time.Unix(0, 0))

	limiter, err := NewRedisLimiter(client, threePerSecond, clk, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(ctx, "a")
		require.NoError(t, err)
	}
	res, err := limiter.Check(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	ttl := mr.TTL(redisKeyPrefix + "a")
	assert.Equal(t, 4*time.Second, ttl)
}

func TestRedisLimiter_RejectsInvalidConfig(t *testing.T) {
	_, client := setupTestRedis(t)

	_, err := NewRedisLimiter(client, Config{}, nil, testLogger())
	assert.Error(t, err)

	_, err = NewRedisLimiter(client, Config{Capacity: 3, RefillAmount: 1, RefillInterval: 500 * time.Microsecond}, nil, testLogger())
	assert.ErrorIs(t, err, apperrors.ErrRateLimiterConfig)
}

func TestAdaptiveLimiter_FallsBackWhenRedisFails(t *testing.T) {
	mr, client := setupTestRedis(t)
	clk := clock.NewFake(time.Unix(0, 0))

	primary, err := NewRedisLimiter(client, threePerSecond, clk, testLogger())
	require.NoError(t, err)
	fallback, err := NewMemoryLimiter(Config{Capacity: 1, RefillAmount: 1, RefillInterval: time.Second}, clk, testLogger())
	require.NoError(t, err)

	limiter := NewAdaptiveLimiter(primary, fallback, testLogger())
	ctx := context.Background()

	res, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	mr.Close()

	res, err = limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
