// Package ratelimit throttles updates per scope with a lazily refilled token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/pkg/config"
)

// Config describes one token bucket: Capacity tokens, refilled by RefillAmount every RefillInterval.
type Config struct {
	Capacity       int
	RefillAmount   int
	RefillInterval time.Duration
	// MaxScopes caps the number of buckets kept in memory. Zero means unbounded.
	MaxScopes int
}

// Validate reports a RateLimiterConfig error for any non-positive parameter.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return apperrors.NewRateLimiterConfigError(fmt.Sprintf("capacity must be positive, got %d", c.Capacity))
	case c.RefillAmount <= 0:
		return apperrors.NewRateLimiterConfigError(fmt.Sprintf("refill amount must be positive, got %d", c.RefillAmount))
	case c.RefillInterval <= 0:
		return apperrors.NewRateLimiterConfigError(fmt.Sprintf("refill interval must be positive, got %s", c.RefillInterval))
	case c.MaxScopes < 0:
		return apperrors.NewRateLimiterConfigError(fmt.Sprintf("max scopes must not be negative, got %d", c.MaxScopes))
	}
	return nil
}

// ConfigFrom maps the process configuration onto a bucket Config.
func ConfigFrom(cfg config.RateLimitConfig) Config {
	return Config{
		Capacity:       cfg.Capacity,
		RefillAmount:   cfg.RefillAmount,
		RefillInterval: cfg.RefillInterval,
		MaxScopes:      cfg.MaxScopes,
	}
}

// fullAfter returns how long an untouched bucket needs to refill from empty.
func (c Config) fullAfter() time.Duration {
	intervals := (c.Capacity + c.RefillAmount - 1) / c.RefillAmount
	return time.Duration(intervals) * c.RefillInterval
}

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one token from the bucket identified by key. Errors mean the backend failed,
// never that the limit was reached.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
}
