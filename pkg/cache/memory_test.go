package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func newTestMemory(t *testing.T, opts ...MemoryOption) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	opts = append([]MemoryOption{WithMemoryClock(clock.Now), WithMemoryCleanup(0, 0)}, opts...)
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clock
}

func TestMemoryCache_RoundTripStruct(t *testing.T) {
	mc, _ := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "q:AAPL", quote{Symbol: "AAPL", Price: 189.5}, time.Minute))

	var got quote
	require.NoError(t, mc.Get(ctx, "q:AAPL", &got))
	assert.Equal(t, quote{Symbol: "AAPL", Price: 189.5}, got)
}

func TestMemoryCache_LazyExpiry(t *testing.T) {
	mc, clock := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Second))
	clock.Advance(9 * time.Second)

	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)

	clock.Advance(time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len(), "expired entry is dropped on read")
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, _ := newTestMemory(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCache_SweepIsBounded(t *testing.T) {
	mc, clock := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, mc.Set(ctx, GenerateKey("k", i), i, time.Second))
	}
	clock.Advance(2 * time.Second)

	assert.Equal(t, 4, mc.Sweep(4))
	assert.Equal(t, 6, mc.Len())
	assert.Equal(t, 6, mc.Sweep(0))
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_TryLock(t *testing.T) {
	mc, clock := newTestMemory(t)
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:outcomes", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:outcomes", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, err = mc.TryLock(ctx, "lock:outcomes", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock is reclaimable after its ttl")

	require.NoError(t, mc.Unlock(ctx, "lock:outcomes"))
	exists, err := mc.Exists(ctx, "lock:outcomes")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	mc, _ := newTestMemory(t, WithMemoryMaxSize(64))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := GenerateKey("k", (g*200+i)%100)
				_ = mc.Set(ctx, key, i, time.Minute)
				var v int
				_ = mc.Get(ctx, key, &v)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, mc.Len(), 64)
}
