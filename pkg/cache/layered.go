package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a short-lived in-process layer in front of
// Redis. Writes go to Redis first.
type LayeredCache struct {
	l1  *MemoryCache
	l2  *RedisCache
	ttl time.Duration
}

var _ Service = (*LayeredCache)(nil)

func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	s := &layeredSettings{size: 1000, ttl: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return &LayeredCache{
		l1:  NewMemoryCache(WithMemoryMaxSize(s.size)),
		l2:  redisCache,
		ttl: s.ttl,
	}
}

// Set stores value in Redis, then in memory with the ttl capped.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error {
	if err := lc.l2.Set(ctx, key, value, ttl, tags...); err != nil {
		return err
	}
	l1TTL := lc.ttl
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	_ = lc.l1.Set(ctx, key, value, l1TTL, tags...)
	return nil
}

// Get does not promote Redis hits into memory: their tags are unknown here
// and a later EvictTag would miss them.
func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if lc.l1.Get(ctx, key, dest) == nil {
		return nil
	}
	return lc.l2.Get(ctx, key, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) EvictTag(ctx context.Context, tags ...string) error {
	_ = lc.l1.EvictTag(ctx, tags...)
	return lc.l2.EvictTag(ctx, tags...)
}

// TryLock and Unlock always go to Redis so locks hold across instances.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
