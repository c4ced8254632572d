package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

const (
	redisLockPrefix      = "session:lock:"
	defaultLockTTL       = 45 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	minLockTTL           = 100 * time.Millisecond
	unlockTimeout        = 2 * time.Second
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the lock still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockOptions tunes RedisLocker.
type RedisLockOptions struct {
	// TTL bounds how long a crashed holder can keep a scope. A live holder renews it every TTL/3
	// until it unlocks, so handlers may outlast it.
	TTL time.Duration
	// RetryInterval is the polling period while waiting.
	RetryInterval time.Duration
	// Reject makes Lock fail with ErrLocked instead of waiting.
	Reject bool
}

// RedisLocker serializes a scope across processes with SET NX PX and a per-holder token.
type RedisLocker struct {
	client redis.UniversalClient
	opts   RedisLockOptions
	log    *slog.Logger
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client redis.UniversalClient, opts RedisLockOptions, log *slog.Logger) *RedisLocker {
	if log == nil {
		log = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultLockTTL
	}
	if opts.TTL < minLockTTL {
		opts.TTL = minLockTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}

	return &RedisLocker{
		client: client,
		opts:   opts,
		log:    log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, scope update.Scope) (func(), error) {
	key := redisLockPrefix + scope.String()
	holder := uuid.NewString()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, key, holder, l.opts.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.log.Error("failed to acquire scope lock", "scope", scope.String(), "error", err)
			return nil, apperrors.NewSessionBackendError("lock", err)
		}

		if acquired {
			return l.releaser(ctx, key, holder, scope), nil
		}

		if l.opts.Reject {
			l.log.Warn("scope lock already held", "scope", scope.String())
			return nil, ErrLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(ctx context.Context, key, holder string, scope update.Scope) func() {
	stop := make(chan struct{})
	renewed := make(chan struct{})
	go l.renew(key, holder, scope, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed

			// the dispatch deadline may already have passed, release anyway
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer cancel()

			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, holder).Err(); err != nil {
				l.log.Error("failed to release scope lock", "scope", scope.String(), "error", err)
			}
		})
	}
}

// renew keeps the lock alive until stop is closed or the token is no longer ours.
func (l *RedisLocker) renew(key, holder string, scope update.Scope, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.opts.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		extended, err := extendScript.Run(ctx, l.client, []string{key}, holder, l.opts.TTL.Milliseconds()).Int()
		cancel()

		switch {
		case err != nil:
			l.log.Warn("failed to renew scope lock", "scope", scope.String(), "error", err)
		case extended == 0:
			l.log.Error("scope lock lost before release", "scope", scope.String())
			return
		}
	}
}
