package cache

import (
	"context"
	"time"
)

// LayeredCache keeps a small in-process L1 in front of a shared L2 (Redis).
// L1 entries live at most l1TTL so replicas converge on L2 quickly.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

// NewLayeredCache puts a small in-process L1 in front of l2.
func NewLayeredCache(l2 Service, l1Size int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Second
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(l1Size)),
		l2:    l2,
		l1TTL: l1TTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, value, lc.localTTL(expiration))
	return nil
}

// Get reads L1 first and fills it from L2 on miss.
func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	if err := lc.l1.Get(ctx, key, &raw); err == nil {
		return decode(raw, dest)
	}

	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

// Locks always go to L2 so they are visible to every replica.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

func (lc *LayeredCache) localTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}
