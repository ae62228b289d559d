package sources

import (
	"context"
	"errors"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	"Argo/internal/service/breaker"
	"Argo/internal/service/cache"
	"Argo/internal/service/ratelimit"
	"Argo/pkg/logger"
)

// Guard runs one upstream call through the resource stack:
// cache -> rate limiter -> circuit breaker -> fetch, caching successes with
// the adaptive TTL.
type Guard[T any] struct {
	name    string
	cache   *cache.AdaptiveCache
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	baseTTL time.Duration
	timeout time.Duration
	health  *HealthTracker
	metrics repository.Metrics
	l       *logger.Logger
}

type GuardOption[T any] func(*Guard[T])

func WithCache[T any](c *cache.AdaptiveCache, baseTTL time.Duration) GuardOption[T] {
	return func(g *Guard[T]) {
		g.cache = c
		g.baseTTL = baseTTL
	}
}

func WithLimiter[T any](l *ratelimit.Limiter) GuardOption[T] {
	return func(g *Guard[T]) { g.limiter = l }
}

func WithBreaker[T any](b *breaker.Breaker) GuardOption[T] {
	return func(g *Guard[T]) { g.breaker = b }
}

// WithTimeout bounds a single upstream call; zero leaves the caller's deadline alone.
func WithTimeout[T any](d time.Duration) GuardOption[T] {
	return func(g *Guard[T]) { g.timeout = d }
}

func WithHealth[T any](h *HealthTracker) GuardOption[T] {
	return func(g *Guard[T]) { g.health = h }
}

func WithMetrics[T any](m repository.Metrics) GuardOption[T] {
	return func(g *Guard[T]) { g.metrics = m }
}

func WithLogger[T any](l *logger.Logger) GuardOption[T] {
	return func(g *Guard[T]) { g.l = l }
}

func NewGuard[T any](name string, opts ...GuardOption[T]) *Guard[T] {
	g := &Guard[T]{name: name}
	for _, opt := range opts {
		opt(g)
	}
	if g.health == nil {
		g.health = NewHealthTracker()
	}
	return g
}

func (g *Guard[T]) Name() string { return g.name }

// Do returns the cached value for key or performs fetch. mc drives the cache TTL.
func (g *Guard[T]) Do(ctx context.Context, key string, mc models.MarketContext, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if g.cache != nil {
		var cached T
		if g.cache.Get(ctx, g.name, key, &cached) {
			g.health.RecordCacheHit(g.name)
			g.record("cache_hit", 0)
			return cached, nil
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx, g.name); err != nil {
			g.health.RecordFailure(g.name, err, 0)
			g.record("rate_limited", 0)
			return zero, err
		}
	}

	start := time.Now()
	call := func() (T, error) {
		cctx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fetch(cctx)
	}

	var (
		v   T
		err error
	)
	if g.breaker != nil {
		v, err = breaker.Do(g.breaker, call)
	} else {
		v, err = call()
	}
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			g.health.RecordShortCircuit(g.name)
			g.record("short_circuit", 0)
		} else {
			g.health.RecordFailure(g.name, err, latency)
			g.record("failure", latency.Seconds())
		}
		return zero, err
	}

	g.health.RecordSuccess(g.name, latency)
	g.record("success", latency.Seconds())

	if g.cache != nil {
		ttl := g.cache.TTLFor(g.baseTTL, mc)
		if cerr := g.cache.Set(ctx, g.name, key, v, ttl); cerr != nil {
			g.l.Debug("cache write failed",
				logger.String("source", g.name),
				logger.String("key", key),
				logger.Error(cerr),
			)
		}
	}
	return v, nil
}

func (g *Guard[T]) record(result string, seconds float64) {
	if g.metrics != nil {
		g.metrics.RecordSourceFetch(g.name, result, seconds)
	}
}
