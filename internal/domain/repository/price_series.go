package repository

import (
	"context"
	"time"

	"Argo/internal/domain/models"
)

// Timeframe is a candle resolution.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// PriceSeriesProvider returns the last `lookback` bars for a symbol, oldest first.
type PriceSeriesProvider interface {
	FetchPriceSeries(ctx context.Context, symbol string, lookback int, tf Timeframe) ([]models.Candle, error)
}

// BarRangeProvider returns bars whose bucket lies in [from, to), oldest first.
type BarRangeProvider interface {
	FetchBarsBetween(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
}
