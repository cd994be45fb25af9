package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func newMemory(t *testing.T, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryRoundTripsJSON(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t)

	require.NoError(t, mc.Set(ctx, "k", payload{Name: "a", Items: []string{"x"}}, time.Minute))
	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", Items: []string{"x"}}, got)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t)

	require.NoError(t, mc.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var got int
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryEvictTag(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t)

	require.NoError(t, mc.Set(ctx, "sector:a", 1, time.Minute, "history:sector"))
	require.NoError(t, mc.Set(ctx, "sector:b", 2, time.Minute, "history:sector"))
	require.NoError(t, mc.Set(ctx, "both", 3, time.Minute, "history:sector", "history:asset"))
	require.NoError(t, mc.Set(ctx, "asset:a", 4, time.Minute, "history:asset"))

	require.NoError(t, mc.EvictTag(ctx, "history:sector"))

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "sector:a", &v), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "sector:b", &v), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "both", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "asset:a", &v))
	assert.Equal(t, 4, v)

	require.NoError(t, mc.EvictTag(ctx, "history:asset"))
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryOverwriteReplacesTags(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t)

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute, "old"))
	require.NoError(t, mc.Set(ctx, "k", 2, time.Minute, "new"))
	require.NoError(t, mc.EvictTag(ctx, "old"))

	var v int
	require.NoError(t, mc.Get(ctx, "k", &v))
	assert.Equal(t, 2, v)
}

func TestMemoryLRUEviction(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
}

func TestMemoryTryLock(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t)

	ok, err := mc.TryLock(ctx, "lock:sector", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:sector", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:sector"))
	ok, _ = mc.TryLock(ctx, "lock:sector", time.Minute)
	assert.True(t, ok)
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	mc := newMemory(t)

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"x", "y"}, nil
	}
	for i := 0; i < 3; i++ {
		got, err := Remember(ctx, mc, "r", time.Minute, []string{"t"}, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, got)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, mc.EvictTag(ctx, "t"))
	_, err := Remember(ctx, mc, "r", time.Minute, []string{"t"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	_, err = Remember(ctx, mc, "other", time.Minute, nil, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestKey(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "history:sector:2024-01-02", Key("history", "sector", day))
	assert.Equal(t, "q:7:2024-01-02T15:04:05Z", Key("q", 7, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)))
	assert.Len(t, Digest("anything"), 32)
	assert.Equal(t, Digest("a"), Digest("a"))
	assert.NotEqual(t, Digest("a"), Digest("b"))
}
