// Package statestore provides keyed caches with optional sliding expiration.
package statestore

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// NoExpiration keeps an item until it is removed.
const NoExpiration time.Duration = 0

// Store caches values of type T by key. A positive ttl is a sliding
// expiration: every hit extends the item's lifetime by ttl.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	GetBulk(ctx context.Context, keys []string) ([]T, error)
	GetOrCreate(ctx context.Context, key string, factory func(ctx context.Context) (T, error), ttl time.Duration) (T, error)
	Add(ctx context.Context, key string, item T, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

type getter[T any] func(ctx context.Context, key string) (T, bool, error)

func getBulk[T any](ctx context.Context, keys []string, get getter[T]) ([]T, error) {
	out := make([]T, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok, err := get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// loader serializes factory calls per key.
type loader[T any] struct {
	group singleflight.Group
}

func (l *loader[T]) getOrCreate(ctx context.Context, key string, get getter[T], add func(context.Context, string, T, time.Duration) error, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if v, ok, err := get(ctx, key); err != nil || ok {
		return v, err
	}
	res, err, _ := l.group.Do(key, func() (any, error) {
		if v, ok, err := get(ctx, key); err != nil || ok {
			return v, err
		}
		v, err := factory(ctx)
		if err != nil {
			return v, err
		}
		if err := add(ctx, key, v, ttl); err != nil {
			return v, err
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
