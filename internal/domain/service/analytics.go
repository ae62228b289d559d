package service

import (
	"context"

	"Argo/internal/domain/models"
)

// OpinionFetcher produces one upstream's directional view of a symbol. It is
// the raw call a DataSourceAdapter guards with cache, limiter and breaker.
type OpinionFetcher interface {
	SourceID() string
	FetchOpinion(ctx context.Context, mc models.MarketContext) (models.SourceOpinion, error)
}

// RegimeDetector classifies current market conditions for a symbol.
type RegimeDetector interface {
	Detect(ctx context.Context, mc models.MarketContext) (models.Regime, error)
}

// Calibrator maps raw consensus confidence (0..100) to an empirical win probability on the same scale.
type Calibrator interface {
	Calibrate(symbol string, raw float64) float64
}
