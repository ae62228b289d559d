package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	pkgcache "Argo/pkg/cache"
	"Argo/pkg/logger"
)

// AdaptiveCache is TTL-agnostic storage plus hit accounting. Callers pick the
// TTL for each write, normally through TTLFor.
type AdaptiveCache struct {
	store      pkgcache.Service
	policy     TTLPolicy
	defaultTTL time.Duration
	metrics    repository.Metrics
	l          *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewAdaptiveCache wraps store with TTLs chosen by policy.
func NewAdaptiveCache(store pkgcache.Service, policy TTLPolicy, defaultTTL time.Duration, m repository.Metrics, l *logger.Logger) *AdaptiveCache {
	return &AdaptiveCache{
		store:      store,
		policy:     policy,
		defaultTTL: defaultTTL,
		metrics:    m,
		l:          l,
	}
}

// Get decodes the entry into dest and reports a hit. Store errors count as misses.
func (c *AdaptiveCache) Get(ctx context.Context, namespace, key string, dest interface{}) bool {
	err := c.store.Get(ctx, pkgcache.GenerateKey(namespace, key), dest)
	hit := err == nil
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.l.Debug("adaptive cache read failed",
				logger.String("namespace", namespace),
				logger.String("key", key),
				logger.Error(err),
			)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(namespace, hit)
	}
	return hit
}

// Set stores value for ttl; a non-positive ttl means the configured default.
func (c *AdaptiveCache) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.store.Set(ctx, pkgcache.GenerateKey(namespace, key), value, ttl)
}

// TTLFor applies the policy to the symbol's current market context.
func (c *AdaptiveCache) TTLFor(base time.Duration, mc models.MarketContext) time.Duration {
	return c.policy.Compute(mc.Symbol, base, mc.MarketHours, mc.Volatility)
}

// Stats returns hit and miss counters since start.
func (c *AdaptiveCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// HitRate returns hits over lookups, zero before the first lookup.
func (c *AdaptiveCache) HitRate() float64 {
	h, m := c.Stats()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// Store exposes the backing service for locks and shared snapshots.
func (c *AdaptiveCache) Store() pkgcache.Service {
	return c.store
}
