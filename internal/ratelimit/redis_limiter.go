package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/himera-dispatch/internal/clock"
	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
)

const redisKeyPrefix = "ratelimit:bucket:"

// tokenBucketScript runs the same refill-then-consume step as MemoryLimiter atomically.
// Time comes from the caller so every process shares one notion of the bucket clock.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local amount = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call("HMGET", KEYS[1], "tokens", "last")
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = capacity
	last = now
end

if now > last then
	local intervals = math.floor((now - last) / interval)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals * amount)
		last = last + intervals * interval
	end
end

local allowed = 0
local retry = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	retry = last + interval - now
end

redis.call("HSET", KEYS[1], "tokens", tokens, "last", last)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tokens, retry}
`)

// RedisLimiter shares token buckets across processes. Idle keys expire once the bucket would be
// full again, which is indistinguishable from a fresh bucket.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
	clock  clock.Clock
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter validates cfg and creates a Redis-backed Limiter.
func NewRedisLimiter(client redis.UniversalClient, cfg Config, clk clock.Clock, log *slog.Logger) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// the script works in whole milliseconds
	if cfg.RefillInterval < time.Millisecond {
		return nil, apperrors.NewRateLimiterConfigError(fmt.Sprintf("refill interval must be at least 1ms for redis, got %s", cfg.RefillInterval))
	}
	if client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		clock:  clk,
		log:    log,
	}, nil
}

// Check consumes one token for key.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Result, error) {
	ttl := l.cfg.fullAfter() + l.cfg.RefillInterval

	values, err := tokenBucketScript.Run(ctx, l.client, []string{redisKeyPrefix + key},
		l.cfg.Capacity,
		l.cfg.RefillAmount,
		l.cfg.RefillInterval.Milliseconds(),
		l.clock.Now().UnixMilli(),
		ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		l.log.Error("rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return Result{}, err
	}

	if len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected rate limiter reply of %d values", len(values))
	}

	return Result{
		Allowed:    values[0] == 1,
		Remaining:  int(values[1]),
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}
