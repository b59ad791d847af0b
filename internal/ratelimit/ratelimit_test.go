package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
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
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMemory(limit int, period time.Duration) (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(limit, period)
	m.now = clock.now
	return m, clock
}

func TestMemoryFixedWindow(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory(3, time.Minute)
	start := clock.now()

	for i := 0; i < 3; i++ {
		res := m.Check(ctx, "10.0.0.1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, start.Add(time.Minute), res.ResetAt)
	}

	res := m.Check(ctx, "10.0.0.1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	assert.True(t, m.Check(ctx, "10.0.0.2").Allowed, "keys are independent")

	clock.advance(time.Minute)
	res = m.Check(ctx, "10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryEmptyKeyIsUnknown(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(1, time.Minute)

	assert.True(t, m.Check(ctx, "").Allowed)
	assert.False(t, m.Check(ctx, UnknownKey).Allowed)
}

func TestMemoryReset(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(1, time.Hour)

	m.Check(ctx, "k")
	require.False(t, m.Check(ctx, "k").Allowed)
	require.NoError(t, m.Reset(ctx))
	assert.True(t, m.Check(ctx, "k").Allowed)
}

func TestMemoryIndependentInstances(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestMemory(1, time.Hour)
	b, _ := newTestMemory(1, time.Hour)

	a.Check(ctx, "k")
	assert.False(t, a.Check(ctx, "k").Allowed)
	assert.True(t, b.Check(ctx, "k").Allowed)
}

func TestMemoryConcurrent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(50, time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Check(ctx, "k").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRedisFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, 5, time.Minute, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	res := r.Check(context.Background(), "10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
	assert.Equal(t, "hireflow:ratelimit:unknown", r.key(""))
}
