package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrDuplicate reports an update key that was already claimed.
var ErrDuplicate = errors.New("update already processed or in progress")

const defaultTTL = 24 * time.Hour

// Tracker claims update keys before processing and settles them afterwards.
type Tracker struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

// NewTracker creates a Tracker. A non-positive ttl defaults to one day, longer than any
// platform redelivery window.
func NewTracker(store Store, ttl time.Duration, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Tracker{
		store: store,
		ttl:   ttl,
		log:   log,
	}
}

// Begin claims key. It returns ErrDuplicate when key was seen before.
func (t *Tracker) Begin(ctx context.Context, key string) error {
	claimed, err := t.store.Claim(ctx, key, t.ttl)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrDuplicate
	}
	return nil
}

// Finish settles a claimed key: completed keys keep rejecting redeliveries, failed ones are
// released so the next delivery is processed again.
func (t *Tracker) Finish(ctx context.Context, key string, failed bool) {
	var err error
	if failed {
		err = t.store.Release(ctx, key)
	} else {
		err = t.store.Complete(ctx, key, t.ttl)
	}

	if err != nil {
		t.log.Warn("failed to settle idempotency key", slog.String("key", key), slog.Bool("failed", failed), slog.Any("error", err))
	}
}

// Status returns the recorded status of key.
func (t *Tracker) Status(ctx context.Context, key string) (string, error) {
	return t.store.Status(ctx, key)
}
