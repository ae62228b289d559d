package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	"Argo/internal/service/cache"
	"Argo/internal/services/features"
)

// PriceFeed builds the per-cycle MarketContext from a guarded price series
// fetch, refined with the freshest live tick when one is newer than the last bar.
type PriceFeed struct {
	provider repository.PriceSeriesProvider
	guard    *Guard[[]models.Candle]
	book     repository.LatestPrices
	lookback int
	tf       repository.Timeframe
	now      func() time.Time

	mu   sync.RWMutex
	vols map[string]float64
}

func NewPriceFeed(provider repository.PriceSeriesProvider, guard *Guard[[]models.Candle], book repository.LatestPrices, lookback int, tf repository.Timeframe) *PriceFeed {
	if !repository.IsValidTimeframe(tf) {
		tf = repository.DefaultTimeframe()
	}
	return &PriceFeed{
		provider: provider,
		guard:    guard,
		book:     book,
		lookback: lookback,
		tf:       tf,
		now:      time.Now,
		vols:     make(map[string]float64),
	}
}

func (p *PriceFeed) MarketContext(ctx context.Context, symbol string) (models.MarketContext, error) {
	now := p.now()
	hint := models.MarketContext{
		Symbol:      symbol,
		MarketHours: cache.IsMarketHours(symbol, now),
		Volatility:  p.Volatility(symbol),
	}

	key := fmt.Sprintf("%s:%s:%d", symbol, p.tf, p.lookback)
	series, err := p.guard.Do(ctx, key, hint, func(ctx context.Context) ([]models.Candle, error) {
		return p.provider.FetchPriceSeries(ctx, symbol, p.lookback, p.tf)
	})
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("market context %s: %w", symbol, err)
	}
	if len(series) == 0 {
		return models.MarketContext{}, fmt.Errorf("market context %s: %w", symbol, ErrInsufficientData)
	}

	last := series[len(series)-1]
	mc := models.MarketContext{
		Symbol:      symbol,
		Price:       last.Close,
		Volatility:  features.RealizedVolatility(features.ComputeLogReturns(series), 0, p.tf.BarsPerYear()),
		Series:      series,
		MarketHours: hint.MarketHours,
		AsOf:        last.Bucket,
	}
	if p.book != nil {
		if t, ok := p.book.Last(symbol); ok && t.Price > 0 && t.Timestamp.After(last.Bucket) {
			mc.Price = t.Price
			mc.AsOf = t.Timestamp
		}
	}

	p.mu.Lock()
	p.vols[symbol] = mc.Volatility
	p.mu.Unlock()
	return mc, nil
}

// Volatility is the last computed annualized volatility, zero if unseen.
func (p *PriceFeed) Volatility(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vols[symbol]
}

// LatestPrice prefers the live book and falls back to nothing; callers that
// need a guaranteed price use MarketContext.
func (p *PriceFeed) LatestPrice(symbol string) (float64, bool) {
	if p.book == nil {
		return 0, false
	}
	t, ok := p.book.Last(symbol)
	if !ok || t.Price <= 0 {
		return 0, false
	}
	return t.Price, true
}
