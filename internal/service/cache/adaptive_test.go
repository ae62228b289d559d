package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	pkgcache "Argo/pkg/cache"
)

func TestAdaptiveCache_HitMissAccounting(t *testing.T) {
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0, 0))
	t.Cleanup(func() { _ = store.Close() })
	c := NewAdaptiveCache(store, DefaultTTLPolicy(), time.Minute, nil, nil)
	ctx := context.Background()

	var op models.SourceOpinion
	assert.False(t, c.Get(ctx, "opinion", "sentiment:AAPL", &op))

	want := models.SourceOpinion{SourceID: "sentiment", Direction: models.DirectionLong, RawConfidence: 0.8}
	require.NoError(t, c.Set(ctx, "opinion", "sentiment:AAPL", want, 0))
	assert.True(t, c.Get(ctx, "opinion", "sentiment:AAPL", &op))
	assert.Equal(t, want, op)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.InDelta(t, 0.5, c.HitRate(), 1e-9)
}

func TestAdaptiveCache_TTLFor(t *testing.T) {
	c := NewAdaptiveCache(nil, DefaultTTLPolicy(), time.Minute, nil, nil)
	mc := models.MarketContext{Symbol: "AAPL", MarketHours: false, Volatility: 0.1}
	assert.Equal(t, 15*time.Minute, c.TTLFor(time.Minute, mc))
}
