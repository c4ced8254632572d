package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

const (
	redisKeyPrefix      = "session:data:"
	redisScanPattern    = redisKeyPrefix + "*"
	redisScanBatchCount = 100
)

// RedisStore keeps one JSON value per scope and relies on native key expiry.
type RedisStore struct {
	client redis.UniversalClient
	log    *slog.Logger
}

// NewRedisStore initializes a Redis-backed Store.
func NewRedisStore(client redis.UniversalClient, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

func redisKey(scope update.Scope) string {
	return redisKeyPrefix + scope.String()
}

func (s *RedisStore) Get(ctx context.Context, scope update.Scope) (Data, error) {
	raw, err := s.client.Get(ctx, redisKey(scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		s.log.Error("failed to get session from redis", "scope", scope.String(), "error", err)
		return nil, apperrors.NewSessionBackendError("get", err)
	}

	data := Data{}
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Error("failed to decode session", "scope", scope.String(), "error", err)
		return nil, apperrors.NewSessionBackendError("decode", err)
	}

	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, scope update.Scope, data Data, ttl time.Duration) error {
	if data == nil {
		data = Data{}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return apperrors.NewSessionBackendError("encode", err)
	}

	if err := s.client.Set(ctx, redisKey(scope), raw, ttl).Err(); err != nil {
		s.log.Error("failed to save session in redis", "scope", scope.String(), "error", err)
		return apperrors.NewSessionBackendError("set", err)
	}

	return nil
}

func (s *RedisStore) Remove(ctx context.Context, scope update.Scope) error {
	if err := s.client.Del(ctx, redisKey(scope)).Err(); err != nil {
		s.log.Error("failed to remove session", "scope", scope.String(), "error", err)
		return apperrors.NewSessionBackendError("remove", err)
	}

	return nil
}

// Range scans every session key. Sessions expiring mid-scan are skipped.
func (s *RedisStore) Range(ctx context.Context, fn func(scope update.Scope, data Data) error) error {
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisScanPattern, redisScanBatchCount).Result()
		if err != nil {
			s.log.Error("failed to scan sessions", "error", err)
			return apperrors.NewSessionBackendError("scan", err)
		}

		for _, key := range keys {
			scope, err := update.ParseScope(strings.TrimPrefix(key, redisKeyPrefix))
			if err != nil {
				continue
			}

			data, err := s.Get(ctx, scope)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			if err := fn(scope, data); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
