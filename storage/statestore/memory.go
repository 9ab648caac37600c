package statestore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps values in process memory.
type MemoryStore[T any] struct {
	cache  *ttlcache.Cache[string, T]
	loader loader[T]
}

// NewMemoryStore returns a store that evicts expired items in the
// background until Close is called.
func NewMemoryStore[T any]() *MemoryStore[T] {
	c := ttlcache.New[string, T]()
	go c.Start()
	return &MemoryStore[T]{cache: c}
}

func (s *MemoryStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	item := s.cache.Get(key)
	if item == nil {
		return zero, false, nil
	}
	return item.Value(), true, nil
}

func (s *MemoryStore[T]) GetBulk(ctx context.Context, keys []string) ([]T, error) {
	return getBulk(ctx, keys, s.Get)
}

func (s *MemoryStore[T]) GetOrCreate(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	return s.loader.getOrCreate(ctx, key, s.Get, s.Add, factory, ttl)
}

func (s *MemoryStore[T]) Add(ctx context.Context, key string, item T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Set(key, item, memoryTTL(ttl))
	return nil
}

func (s *MemoryStore[T]) Remove(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Len returns the number of cached items, expired ones included until the
// next cleanup.
func (s *MemoryStore[T]) Len() int {
	return s.cache.Len()
}

// Close stops background eviction.
func (s *MemoryStore[T]) Close() {
	s.cache.Stop()
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.NoTTL
	}
	return ttl
}
