package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type redisEnvelope[T any] struct {
	TTL   time.Duration `json:"ttl,omitempty"`
	Value T             `json:"value"`
}

// RedisStore keeps values in Redis. Each value remembers its sliding TTL so
// that a hit can re-arm the key's expiry.
type RedisStore[T any] struct {
	client redis.Cmdable
	prefix string
	loader loader[T]
}

// NewRedisStore returns a store whose keys are prefixed with prefix.
func NewRedisStore[T any](client redis.Cmdable, prefix string) *RedisStore[T] {
	return &RedisStore[T]{client: client, prefix: prefix}
}

func (s *RedisStore[T]) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var env redisEnvelope[T]
	if err := sonic.Unmarshal(data, &env); err != nil {
		// Undecodable entries are dropped and reported as misses.
		_ = s.client.Del(ctx, s.key(key)).Err()
		return zero, false, nil
	}
	if env.TTL > 0 {
		if err := s.client.Expire(ctx, s.key(key), env.TTL).Err(); err != nil {
			return zero, false, err
		}
	}
	return env.Value, true, nil
}

func (s *RedisStore[T]) GetBulk(ctx context.Context, keys []string) ([]T, error) {
	return getBulk(ctx, keys, s.Get)
}

func (s *RedisStore[T]) GetOrCreate(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	return s.loader.getOrCreate(ctx, key, s.Get, s.Add, factory, ttl)
}

func (s *RedisStore[T]) Add(ctx context.Context, key string, item T, ttl time.Duration) error {
	if ttl < 0 {
		ttl = NoExpiration
	}
	data, err := sonic.Marshal(redisEnvelope[T]{TTL: ttl, Value: item})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *RedisStore[T]) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
