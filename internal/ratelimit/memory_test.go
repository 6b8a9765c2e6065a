package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(rate float64, burst int) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return newMemoryLimiter(rate, burst, clock.now), clock
}

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	m, _ := newTestLimiter(1, 3)
	ctx := context.Background()

	for i := range 3 {
		d, err := m.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d is within burst", i)
	}
	d, err := m.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}

func TestMemoryLimiter_Refill(t *testing.T) {
	m, clock := newTestLimiter(2, 1)
	ctx := context.Background()

	d, _ := m.Allow(ctx, "k")
	require.True(t, d.Allowed)
	d, _ = m.Allow(ctx, "k")
	require.False(t, d.Allowed)
	assert.Equal(t, 500*time.Millisecond, d.RetryAfter)

	clock.advance(500 * time.Millisecond)
	d, _ = m.Allow(ctx, "k")
	assert.True(t, d.Allowed)

	clock.advance(time.Hour)
	d, _ = m.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	d, _ = m.Allow(ctx, "k")
	assert.False(t, d.Allowed, "refill caps at burst")
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	m, _ := newTestLimiter(1, 1)
	ctx := context.Background()

	a, _ := m.Allow(ctx, "a")
	b, _ := m.Allow(ctx, "b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
	a, _ = m.Allow(ctx, "a")
	assert.False(t, a.Allowed)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	m, _ := newTestLimiter(0.001, 50)
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := m.Allow(context.Background(), "k"); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), allowed.Load())
}

func TestMemoryLimiter_EvictIdle(t *testing.T) {
	m, clock := newTestLimiter(1, 1)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old")
	clock.advance(idleTTL - time.Minute)
	_, _ = m.Allow(ctx, "recent")
	clock.advance(2 * time.Minute)

	m.evictIdle()
	assert.Equal(t, 1, m.size())
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
