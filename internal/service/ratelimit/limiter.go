package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is a token bucket: Burst tokens of capacity refilled at RPS per second.
type Limit struct {
	RPS   float64
	Burst int
}

// Limiter keeps one token bucket per key (source id or client address).
// Buckets are created lazily and are safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	limits   map[string]Limit
	fallback Limit
}

// New creates a limiter. Keys missing from perKey use fallback.
func New(fallback Limit, perKey map[string]Limit) *Limiter {
	limits := make(map[string]Limit, len(perKey))
	for k, v := range perKey {
		limits[k] = v
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		limits:   limits,
		fallback: fallback,
	}
}

// Acquire blocks until a token for key is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	if err := l.bucket(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", key, err)
	}
	return nil
}

// Allow takes a token if one is available right now.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// RetryAfter estimates how long until key has a token again. It does not
// consume one.
func (l *Limiter) RetryAfter(key string) time.Duration {
	b := l.bucket(key)
	if b.Limit() == rate.Inf || b.Limit() <= 0 {
		return 0
	}
	missing := 1 - b.Tokens()
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(b.Limit()) * float64(time.Second))
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	lim, ok := l.limits[key]
	if !ok {
		lim = l.fallback
	}
	burst := lim.Burst
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(lim.RPS)
	if lim.RPS <= 0 {
		r = rate.Inf
	}

	b := rate.NewLimiter(r, burst)
	l.buckets[key] = b
	return b
}
