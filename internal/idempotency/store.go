// Package idempotency recognizes updates the platform delivered more than once.
package idempotency

import (
	"context"
	"time"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Store records which update keys have been claimed.
type Store interface {
	// Claim marks key as processing unless it already exists. It reports whether the caller owns it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Status returns the recorded status of key, or "" when absent.
	Status(ctx context.Context, key string) (string, error)
	// Complete marks key as completed for ttl.
	Complete(ctx context.Context, key string, ttl time.Duration) error
	// Release forgets key so a redelivery is processed again.
	Release(ctx context.Context, key string) error
	// Sweep removes stale entries and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
}
