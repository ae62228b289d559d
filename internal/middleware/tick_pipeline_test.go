package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
)

type recordingSink struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (s *recordingSink) Update(t models.Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
	return true
}

func (s *recordingSink) received() []models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Tick(nil), s.ticks...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tick(symbol string, price float64, at time.Time) models.Tick {
	return models.Tick{Symbol: symbol, Price: price, Volume: 1, Timestamp: at}
}

func TestTickPipeline_RejectsMalformedTicks(t *testing.T) {
	sink := &recordingSink{}
	p := NewTickPipeline(sink, nil, WithMaxRPS(0))
	now := time.Now()

	assert.False(t, p.Update(tick("", 100, now)))
	assert.False(t, p.Update(tick("BTCUSDT", 0, now)))
	assert.False(t, p.Update(tick("BTCUSDT", 100, time.Time{})))
	assert.False(t, p.Update(models.Tick{Symbol: "BTCUSDT", Price: 100, Volume: -1, Timestamp: now}))
	assert.True(t, p.Update(tick("BTCUSDT", 100, now)))

	assert.Len(t, sink.received(), 1)
}

func TestTickPipeline_CoalescesThrottledTicks(t *testing.T) {
	sink := &recordingSink{}
	clock := &manualClock{now: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)}
	p := NewTickPipeline(sink, nil, WithMaxRPS(2), WithClock(clock.Now))
	base := clock.Now()

	require.True(t, p.Update(tick("BTCUSDT", 100, base)))
	require.True(t, p.Update(tick("BTCUSDT", 101, base.Add(10*time.Millisecond))))
	require.True(t, p.Update(tick("BTCUSDT", 102, base.Add(20*time.Millisecond))))
	// an older tick arriving late does not replace the held one
	require.True(t, p.Update(tick("BTCUSDT", 99, base.Add(5*time.Millisecond))))
	require.True(t, p.Update(tick("ETHUSDT", 10, base)))

	assert.Len(t, sink.received(), 2)
	assert.Equal(t, 1, p.Held())

	p.Flush()
	assert.Len(t, sink.received(), 2, "still inside the throttle window")

	clock.Advance(500 * time.Millisecond)
	p.Flush()

	got := sink.received()
	require.Len(t, got, 3)
	assert.Equal(t, 102.0, got[2].Price)
	assert.Equal(t, 0, p.Held())
}

func TestTickPipeline_StopFlushesHeldTicks(t *testing.T) {
	sink := &recordingSink{}
	p := NewTickPipeline(sink, nil, WithMaxRPS(1))
	p.Start(context.Background())

	now := time.Now()
	p.Update(tick("AAPL", 190, now))
	p.Update(tick("AAPL", 191, now.Add(time.Millisecond)))

	require.Eventually(t, func() bool { return len(sink.received()) == 2 }, 5*time.Second, 10*time.Millisecond)
	p.Stop()
	assert.Equal(t, 191.0, sink.received()[1].Price)
}
