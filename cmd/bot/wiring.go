package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/Proton-105/himera-dispatch/internal/access"
	"github.com/Proton-105/himera-dispatch/internal/bot/handlers"
	"github.com/Proton-105/himera-dispatch/internal/idempotency"
	"github.com/Proton-105/himera-dispatch/internal/ratelimit"
	"github.com/Proton-105/himera-dispatch/internal/session"
	"github.com/Proton-105/himera-dispatch/pkg/config"
)

const (
	limiterPruneInterval = time.Minute
	dedupSweepInterval   = 10 * time.Minute
)

var errRedisRequired = errors.New("redis.enabled must be true for redis-backed components")

// newSessionStore builds the configured backend. Local backends get a sweeper on wg.
func newSessionStore(ctx context.Context, cfg config.SessionConfig, rdb *goredis.Client, log *slog.Logger, wg *conc.WaitGroup) (session.Store, error) {
	var local session.Sweepable

	var store session.Store
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, errRedisRequired
		}
		store = session.NewRedisStore(rdb, log)
	case "file":
		fs, err := session.NewFileStore(cfg.Dir, nil, log)
		if err != nil {
			return nil, err
		}
		store, local = fs, fs
	default:
		mem := session.NewMemoryStore(nil)
		store, local = mem, mem
	}

	if local != nil {
		sweeper := session.NewSweeper(local, cfg.SweepInterval, log)
		wg.Go(func() { sweeper.Run(ctx) })
	}

	log.Info("session store ready", slog.String("backend", cfg.Backend), slog.Duration("ttl", cfg.TTL))
	return store, nil
}

// newLocker serializes scopes across instances only when sessions are shared through redis.
func newLocker(cfg *config.Config, rdb *goredis.Client, log *slog.Logger) session.Locker {
	if cfg.Session.Backend == "redis" && rdb != nil {
		return session.NewRedisLocker(rdb, session.RedisLockOptions{
			TTL:    cfg.Dialogue.LockTTL,
			Reject: cfg.Dialogue.RejectLocked,
		}, log)
	}
	return session.NewMemoryLocker(cfg.Dialogue.RejectLocked)
}

// buildPolicy combines config rules with database rules; config rules are evaluated first.
func buildPolicy(ctx context.Context, cfg config.AccessConfig, src *access.SQLRuleSource) (*access.Policy, error) {
	var extra []access.Rule
	if src != nil {
		rules, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		extra = rules
	}
	return access.FromConfig(cfg, extra...)
}

func newRateLimitGuard(ctx context.Context, cfg config.RateLimitConfig, rdb *goredis.Client, log *slog.Logger, wg *conc.WaitGroup) (*ratelimit.Guard, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	limitCfg := ratelimit.ConfigFrom(cfg)

	newMemory := func() (*ratelimit.MemoryLimiter, error) {
		mem, err := ratelimit.NewMemoryLimiter(limitCfg, nil, log)
		if err != nil {
			return nil, err
		}
		cleaner := ratelimit.NewCleaner(mem, log, limiterPruneInterval)
		wg.Go(func() { cleaner.Run(ctx) })
		return mem, nil
	}

	var limiter ratelimit.Limiter
	switch cfg.Backend {
	case "redis", "adaptive":
		if rdb == nil {
			return nil, errRedisRequired
		}
		remote, err := ratelimit.NewRedisLimiter(rdb, limitCfg, nil, log)
		if err != nil {
			return nil, err
		}
		limiter = remote

		if cfg.Backend == "adaptive" {
			fallback, err := newMemory()
			if err != nil {
				return nil, err
			}
			limiter = ratelimit.NewAdaptiveLimiter(remote, fallback, log)
		}
	default:
		mem, err := newMemory()
		if err != nil {
			return nil, err
		}
		limiter = mem
	}

	return ratelimit.NewGuard(limiter, log,
		ratelimit.WithRules(ratelimit.NewRules(cfg)),
		ratelimit.OnLimited(handlers.NotifyLimited),
	), nil
}

func newTracker(ctx context.Context, cfg config.DispatchConfig, rdb *goredis.Client, log *slog.Logger, wg *conc.WaitGroup) *idempotency.Tracker {
	var store idempotency.Store
	if rdb != nil {
		store = idempotency.NewRedisStore(rdb, log)
	} else {
		store = idempotency.NewMemoryStore(nil)
	}

	cleaner := idempotency.NewCleaner(store, log, dedupSweepInterval)
	wg.Go(func() { cleaner.Run(ctx) })

	return idempotency.NewTracker(store, cfg.DedupTTL, log)
}
