package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowDrainsAndRefills(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("eod", 2, 1))
	assert.True(t, l.Allow("eod", 2, 1))
	assert.False(t, l.Allow("eod", 2, 1))
	assert.True(t, l.Allow("other", 2, 1), "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("eod", 2, 1))
	assert.False(t, l.Allow("eod", 2, 1))
}

func TestReserveReportsWait(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	ok, _ := l.reserve("k", 1, 4)
	require.True(t, ok)
	ok, wait := l.reserve("k", 1, 4)
	assert.False(t, ok)
	assert.Equal(t, 250*time.Millisecond, wait)
}

func TestWaitHonoursContext(t *testing.T) {
	l := New()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "k", 1, 0.001)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitReturnsOnceRefilled(t *testing.T) {
	l := New()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 100))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 100))
	assert.Less(t, time.Since(start), time.Second)
}
