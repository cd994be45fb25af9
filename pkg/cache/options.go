package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption tunes NewRedisCache.
type RedisOption func(*redisSettings)

type redisSettings struct {
	client redis.Options
	prefix string
}

func defaultRedisSettings() *redisSettings {
	return &redisSettings{
		client: redis.Options{
			Addr:         "localhost:6379",
			PoolSize:     10,
			PoolTimeout:  30 * time.Second,
			MinIdleConns: 5,
		},
		prefix: "portfolio_history",
	}
}

func WithRedisAddr(addr string) RedisOption {
	return func(s *redisSettings) { s.client.Addr = addr }
}

// WithRedisAuth selects the password and logical database.
func WithRedisAuth(password string, db int) RedisOption {
	return func(s *redisSettings) {
		s.client.Password = password
		s.client.DB = db
	}
}

// WithRedisPool sizes the connection pool. Zero values keep the defaults.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(s *redisSettings) {
		if size > 0 {
			s.client.PoolSize = size
		}
		if minIdle > 0 {
			s.client.MinIdleConns = minIdle
		}
		if timeout > 0 {
			s.client.PoolTimeout = timeout
		}
	}
}

// WithRedisPrefix namespaces every key, tag and lock.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *redisSettings) { s.prefix = prefix }
}

// MemoryOption tunes NewMemoryCache.
type MemoryOption func(*memorySettings)

type memorySettings struct {
	maxSize int
	cleanup time.Duration
}

// WithMemoryMaxSize bounds the entry count; the least recently read entry
// goes first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(s *memorySettings) { s.maxSize = size }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(s *memorySettings) { s.cleanup = interval }
}

// LayeredOption tunes NewLayeredCache.
type LayeredOption func(*layeredSettings)

type layeredSettings struct {
	size int
	ttl  time.Duration
}

// WithLayeredMemory sizes the in-process layer and caps its ttl. Evictions
// made by other instances only reach Redis, so the cap bounds staleness.
func WithLayeredMemory(size int, ttl time.Duration) LayeredOption {
	return func(s *layeredSettings) {
		if size > 0 {
			s.size = size
		}
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}
