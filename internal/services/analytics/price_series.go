package analytics

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
)

// HTTPPriceSeries fetches OHLCV bars: GET /prices?symbol=X&lookback=N&tf=5m.
type HTTPPriceSeries struct {
	base *HTTPServiceBase
}

func NewHTTPPriceSeries(base *HTTPServiceBase) *HTTPPriceSeries {
	return &HTTPPriceSeries{base: base}
}

type priceSeriesResp struct {
	Symbol  string          `json:"symbol"`
	Candles []models.Candle `json:"candles"`
}

func (p *HTTPPriceSeries) FetchPriceSeries(ctx context.Context, symbol string, lookback int, tf repository.Timeframe) ([]models.Candle, error) {
	var resp priceSeriesResp
	q := url.Values{
		"symbol":   {symbol},
		"lookback": {strconv.Itoa(lookback)},
		"tf":       {string(tf)},
	}
	if err := p.base.GetJSON(ctx, "/prices", q, &resp); err != nil {
		return nil, fmt.Errorf("price series %s: %w", symbol, err)
	}
	if len(resp.Candles) == 0 {
		return nil, fmt.Errorf("price series %s: empty response", symbol)
	}

	candles := resp.Candles
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Bucket.Before(candles[j].Bucket) })
	for i := range candles {
		candles[i].Symbol = symbol
		if candles[i].Close <= 0 {
			return nil, fmt.Errorf("price series %s: non-positive close at %s", symbol, candles[i].Bucket)
		}
	}
	if lookback > 0 && len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}
	return candles, nil
}

// FetchBarsBetween asks for bars in [from, to): GET /prices?symbol=X&tf=5m&from=..&to=..
func (p *HTTPPriceSeries) FetchBarsBetween(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Candle, error) {
	var resp priceSeriesResp
	q := url.Values{
		"symbol": {symbol},
		"tf":     {string(tf)},
		"from":   {from.UTC().Format(time.RFC3339)},
		"to":     {to.UTC().Format(time.RFC3339)},
	}
	if err := p.base.GetJSON(ctx, "/prices", q, &resp); err != nil {
		return nil, fmt.Errorf("price bars %s: %w", symbol, err)
	}

	out := resp.Candles[:0]
	for _, c := range resp.Candles {
		if c.Bucket.Before(from) || !c.Bucket.Before(to) {
			continue
		}
		c.Symbol = symbol
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

var (
	_ repository.PriceSeriesProvider = (*HTTPPriceSeries)(nil)
	_ repository.BarRangeProvider    = (*HTTPPriceSeries)(nil)
)
