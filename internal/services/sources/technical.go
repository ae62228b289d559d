package sources

import (
	"context"
	"fmt"
	"math"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/services/features"
)

// TechnicalFetcher combines an SMA crossover with RSI. Overbought or
// oversold RSI fades the trend.
type TechnicalFetcher struct {
	id        string
	fast      int
	slow      int
	rsiPeriod int
}

func NewTechnicalFetcher(sourceID string) *TechnicalFetcher {
	return &TechnicalFetcher{id: sourceID, fast: 10, slow: 30, rsiPeriod: 14}
}

func (f *TechnicalFetcher) SourceID() string { return f.id }

func (f *TechnicalFetcher) FetchOpinion(ctx context.Context, mc models.MarketContext) (models.SourceOpinion, error) {
	if err := ctx.Err(); err != nil {
		return models.SourceOpinion{}, err
	}
	closes := features.Closes(mc.Series)
	if len(closes) < f.slow {
		return models.SourceOpinion{}, fmt.Errorf("%s %s: %w", f.id, mc.Symbol, ErrInsufficientData)
	}

	fast := features.SMA(closes, f.fast)
	slow := features.SMA(closes, f.slow)
	rsi := features.RSI(closes, f.rsiPeriod)
	spread := fast/slow - 1

	op := models.SourceOpinion{
		SourceID:      f.id,
		Direction:     models.DirectionNeutral,
		RawConfidence: 0.5,
		ObservedAt:    time.Now().UTC(),
		Reason:        fmt.Sprintf("sma%d/sma%d=%.4f rsi%d=%.1f", f.fast, f.slow, spread, f.rsiPeriod, rsi),
	}

	switch {
	case rsi >= 80:
		op.Direction = models.DirectionShort
		op.RawConfidence = math.Min(0.6+(rsi-80)/50, 0.9)
	case rsi <= 20:
		op.Direction = models.DirectionLong
		op.RawConfidence = math.Min(0.6+(20-rsi)/50, 0.9)
	case spread > 0.001 && rsi < 70:
		op.Direction = models.DirectionLong
		op.RawConfidence = math.Min(0.55+math.Abs(spread)*20, 0.9)
	case spread < -0.001 && rsi > 30:
		op.Direction = models.DirectionShort
		op.RawConfidence = math.Min(0.55+math.Abs(spread)*20, 0.9)
	}
	return op, nil
}
