package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/clock"
)

type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	evicted    bool
}

// refill adds RefillAmount per whole elapsed interval, capped at Capacity. lastRefill moves by
// the consumed intervals only so partial progress toward the next token is kept.
func (b *tokenBucket) refill(cfg Config, now time.Time) {
	if !now.After(b.lastRefill) {
		return
	}

	intervals := int64(now.Sub(b.lastRefill) / cfg.RefillInterval)
	if intervals == 0 {
		return
	}

	missing := int64(cfg.Capacity - b.tokens)
	needed := (missing + int64(cfg.RefillAmount) - 1) / int64(cfg.RefillAmount)
	if intervals >= needed {
		b.tokens = cfg.Capacity
	} else {
		b.tokens += int(intervals) * cfg.RefillAmount
	}

	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
}

// MemoryLimiter keeps token buckets in process memory. The map lock only guards lookup and
// creation; each bucket has its own lock so distinct keys never wait on each other.
type MemoryLimiter struct {
	cfg     Config
	clock   clock.Clock
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	log     *slog.Logger
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter validates cfg and returns an in-memory limiter.
func NewMemoryLimiter(cfg Config, clk clock.Clock, log *slog.Logger) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		cfg:     cfg,
		clock:   clk,
		buckets: make(map[string]*tokenBucket),
		log:     log,
	}, nil
}

// Check consumes one token for key.
func (m *MemoryLimiter) Check(_ context.Context, key string) (Result, error) {
	for {
		bkt := m.loadOrCreateBucket(key)

		bkt.mu.Lock()
		if bkt.evicted {
			// pruned between lookup and lock, the map already holds or will hold a fresh bucket
			bkt.mu.Unlock()
			continue
		}

		now := m.clock.Now()
		bkt.refill(m.cfg, now)

		result := Result{}
		if bkt.tokens > 0 {
			bkt.tokens--
			result.Allowed = true
		} else {
			result.RetryAfter = bkt.lastRefill.Add(m.cfg.RefillInterval).Sub(now)
		}
		result.Remaining = bkt.tokens
		bkt.mu.Unlock()

		return result, nil
	}
}

// Prune drops buckets that are full at the current time. A full bucket behaves exactly like a
// fresh one, so pruning never changes a later decision. It returns how many were removed.
func (m *MemoryLimiter) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(m.clock.Now())
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

func (m *MemoryLimiter) pruneLocked(now time.Time) int {
	removed := 0
	for key, bkt := range m.buckets {
		bkt.mu.Lock()
		bkt.refill(m.cfg, now)
		if bkt.tokens == m.cfg.Capacity {
			bkt.evicted = true
			delete(m.buckets, key)
			removed++
		}
		bkt.mu.Unlock()
	}
	return removed
}

func (m *MemoryLimiter) loadOrCreateBucket(key string) *tokenBucket {
	m.mu.RLock()
	bkt := m.buckets[key]
	m.mu.RUnlock()

	if bkt != nil {
		return bkt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if bkt = m.buckets[key]; bkt != nil {
		return bkt
	}

	now := m.clock.Now()
	if m.cfg.MaxScopes > 0 && len(m.buckets) >= m.cfg.MaxScopes {
		if m.pruneLocked(now) == 0 {
			m.log.Warn("rate limiter scope cap reached with no idle buckets",
				slog.Int("max_scopes", m.cfg.MaxScopes),
				slog.Int("buckets", len(m.buckets)),
			)
		}
	}

	bkt = &tokenBucket{tokens: m.cfg.Capacity, lastRefill: now}
	m.buckets[key] = bkt
	return bkt
}
