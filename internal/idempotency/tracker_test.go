package idempotency

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/clock"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(nil),
		"redis":  NewRedisStore(client, testLogger()),
	}
}

func TestTracker_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tracker := NewTracker(store, time.Hour, testLogger())

			require.NoError(t, tracker.Begin(ctx, "k"))
			assert.ErrorIs(t, tracker.Begin(ctx, "k"), ErrDuplicate)

			status, err := tracker.Status(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, StatusProcessing, status)

			tracker.Finish(ctx, "k", false)
			status, _ = tracker.Status(ctx, "k")
			assert.Equal(t, StatusCompleted, status)
			assert.ErrorIs(t, tracker.Begin(ctx, "k"), ErrDuplicate)
		})
	}
}

func TestTracker_FailedUpdatesAreReleased(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tracker := NewTracker(store, time.Hour, testLogger())

			require.NoError(t, tracker.Begin(ctx, "k"))
			tracker.Finish(ctx, "k", true)

			assert.NoError(t, tracker.Begin(ctx, "k"))
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewMemoryStore(clk)

	claimed, err := store.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	clk.Advance(time.Minute)
	claimed, err = store.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	clk.Advance(2 * time.Minute)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRedisStore_SweepRemovesKeysWithoutExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, testLogger())
	ctx := context.Background()

	_, err := store.Claim(ctx, "fresh", time.Hour)
	require.NoError(t, err)
	require.NoError(t, mr.Set(recordKey("orphan"), StatusProcessing))

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, mr.Exists(recordKey("orphan")))
	assert.True(t, mr.Exists(recordKey("fresh")))
}

func TestUpdateKey_IsDeterministic(t *testing.T) {
	a := update.New(10, 1, 2, "", update.Message{Text: "x"})
	b := update.New(10, 1, 2, "", update.Message{Text: "y"})
	c := update.New(11, 1, 2, "", update.Message{Text: "x"})

	assert.Equal(t, UpdateKey(a), UpdateKey(b))
	assert.NotEqual(t, UpdateKey(a), UpdateKey(c))
}
