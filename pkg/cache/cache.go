package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations. Values are stored as JSON. Set may
// attach tags to a key; EvictTag drops every key carrying the tag.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error
	Delete(ctx context.Context, keys ...string) error
	EvictTag(ctx context.Context, tags ...string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Remember returns the cached value under key, or calls load and caches its
// result with the given ttl and tags. Cache failures other than a miss are
// ignored so a broken cache only costs a reload.
func Remember[T any](ctx context.Context, c Service, key string, ttl time.Duration, tags []string, load func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if err := c.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = c.Set(ctx, key, v, ttl, tags...)
	return v, nil
}
