package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	data     []byte
	expireAt time.Time
}

// MemoryCache is an in-process Service with LRU eviction. Expired entries are
// dropped lazily on read, and a periodic sweep bounded by SweepLimit keeps
// never-read entries from piling up.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List // front = most recently used
	maxSize    int
	sweepLimit int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates an in-process cache and starts its sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         10000,
		CleanupInterval: time.Minute,
		SweepLimit:      512,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxSize:    cfg.MaxSize,
		sweepLimit: cfg.SweepLimit,
		now:        cfg.Now,
		stop:       make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go mc.cleanupLoop(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setLocked(key, data, expiration)
	return nil
}

func (mc *MemoryCache) setLocked(key string, data []byte, expiration time.Duration) {
	expireAt := time.Time{}
	if expiration > 0 {
		expireAt = mc.now().Add(expiration)
	}

	if el, ok := mc.items[key]; ok {
		item := el.Value.(*memoryItem)
		item.data = data
		item.expireAt = expireAt
		mc.lru.MoveToFront(el)
		return
	}

	for mc.maxSize > 0 && mc.lru.Len() >= mc.maxSize {
		mc.removeElement(mc.lru.Back())
	}
	mc.items[key] = mc.lru.PushFront(&memoryItem{key: key, data: data, expireAt: expireAt})
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if mc.expired(item) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.lru.MoveToFront(el)
	data := item.data
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok && !mc.expired(el.Value.(*memoryItem)) {
			return true, nil
		}
	}
	return false, nil
}

// TryLock sets key if absent and reports whether it did.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if el, ok := mc.items[key]; ok && !mc.expired(el.Value.(*memoryItem)) {
		return false, nil
	}
	mc.setLocked(key, []byte("locked"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len reports stored entries, expired ones included until they are swept.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

// Sweep removes expired entries, inspecting at most limit entries from the
// cold end of the LRU list. Returns how many were removed.
func (mc *MemoryCache) Sweep(limit int) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	removed := 0
	el := mc.lru.Back()
	for i := 0; el != nil && (limit <= 0 || i < limit); i++ {
		prev := el.Prev()
		if mc.expired(el.Value.(*memoryItem)) {
			mc.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (mc *MemoryCache) expired(item *memoryItem) bool {
	return !item.expireAt.IsZero() && !mc.now().Before(item.expireAt)
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.lru.Remove(el)
	delete(mc.items, el.Value.(*memoryItem).key)
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mc.Sweep(mc.sweepLimit)
		case <-mc.stop:
			return
		}
	}
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}
