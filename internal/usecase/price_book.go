package usecase

import (
	"sync"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
)

// TickSink accepts live ticks; the PriceBook, optionally behind a throttling
// pipeline.
type TickSink interface {
	Update(t models.Tick) bool
}

// PriceBook keeps the newest tick per symbol from every live feed.
type PriceBook struct {
	mu      sync.RWMutex
	last    map[string]models.Tick
	metrics domrepo.Metrics
}

func NewPriceBook(metrics domrepo.Metrics) *PriceBook {
	return &PriceBook{last: make(map[string]models.Tick), metrics: metrics}
}

// Update stores t unless a newer tick for the symbol is already known.
func (b *PriceBook) Update(t models.Tick) bool {
	if t.Symbol == "" || t.Price <= 0 {
		return false
	}
	b.mu.Lock()
	cur, ok := b.last[t.Symbol]
	if ok && cur.Timestamp.After(t.Timestamp) {
		b.mu.Unlock()
		return false
	}
	b.last[t.Symbol] = t
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordLastPrice(t.Symbol, t.Price)
	}
	return true
}

func (b *PriceBook) Last(symbol string) (models.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.last[symbol]
	return t, ok
}

var _ domrepo.LatestPrices = (*PriceBook)(nil)
