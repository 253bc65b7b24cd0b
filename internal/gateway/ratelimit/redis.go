package ratelimit

import (
	"context"
	"time"
)

// windowCounter is satisfied by *redis.Client from internal/shared/redis.
type windowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisStore keeps counters in Redis so that several gateway replicas share
// one budget per client.
type RedisStore struct {
	client windowCounter
}

// NewRedisStore wraps a Redis window counter.
func NewRedisStore(client windowCounter) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return s.client.IncrWindow(ctx, key, window)
}
