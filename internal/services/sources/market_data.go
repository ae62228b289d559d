package sources

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/services/features"
)

var ErrInsufficientData = errors.New("insufficient price history")

// MomentumFetcher reads direction from short and long price momentum.
// Both horizons must agree, otherwise the opinion is NEUTRAL.
type MomentumFetcher struct {
	id       string
	short    int
	long     int
	deadband float64
}

func NewMomentumFetcher(sourceID string) *MomentumFetcher {
	return &MomentumFetcher{id: sourceID, short: 5, long: 20, deadband: 0.002}
}

func (f *MomentumFetcher) SourceID() string { return f.id }

func (f *MomentumFetcher) FetchOpinion(ctx context.Context, mc models.MarketContext) (models.SourceOpinion, error) {
	if err := ctx.Err(); err != nil {
		return models.SourceOpinion{}, err
	}
	closes := features.Closes(mc.Series)
	if len(closes) <= f.long {
		return models.SourceOpinion{}, fmt.Errorf("%s %s: %w", f.id, mc.Symbol, ErrInsufficientData)
	}

	ms := features.Momentum(closes, f.short)
	ml := features.Momentum(closes, f.long)

	op := models.SourceOpinion{
		SourceID:      f.id,
		Direction:     models.DirectionNeutral,
		RawConfidence: 0.5,
		ObservedAt:    time.Now().UTC(),
		Reason:        fmt.Sprintf("mom%d=%.4f mom%d=%.4f", f.short, ms, f.long, ml),
	}
	if math.Abs(ml) < f.deadband || math.Signbit(ms) != math.Signbit(ml) {
		return op, nil
	}

	op.Direction = models.DirectionLong
	if ml < 0 {
		op.Direction = models.DirectionShort
	}
	// 2% over the long window reads as 0.7
	op.RawConfidence = math.Min(0.5+math.Abs(ml)*10, 0.95)
	return op, nil
}
