package sources

import (
	"context"
	"fmt"

	"Argo/internal/domain/models"
	domsvc "Argo/internal/domain/service"
	"Argo/pkg/logger"
)

// Adapter is the DataSourceAdapter for one upstream. Fetch never fails: any
// problem degrades to a nil opinion so one broken upstream cannot stall a symbol.
type Adapter struct {
	fetcher domsvc.OpinionFetcher
	guard   *Guard[models.SourceOpinion]
	l       *logger.Logger
}

func NewAdapter(fetcher domsvc.OpinionFetcher, guard *Guard[models.SourceOpinion], l *logger.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, guard: guard, l: l}
}

func (a *Adapter) SourceID() string { return a.fetcher.SourceID() }

func (a *Adapter) Fetch(ctx context.Context, mc models.MarketContext) (op *models.SourceOpinion) {
	defer func() {
		if r := recover(); r != nil {
			a.l.Error("source fetch panic",
				logger.String("source", a.SourceID()),
				logger.String("symbol", mc.Symbol),
				logger.Any("panic", r),
			)
			op = nil
		}
	}()

	opinion, err := a.guard.Do(ctx, mc.Symbol, mc, func(ctx context.Context) (models.SourceOpinion, error) {
		o, err := a.fetcher.FetchOpinion(ctx, mc)
		if err != nil {
			return models.SourceOpinion{}, err
		}
		o.SourceID = a.SourceID()
		// a malformed answer is a failed call
		if err := o.Validate(); err != nil {
			return models.SourceOpinion{}, fmt.Errorf("malformed opinion: %w", err)
		}
		return o, nil
	})
	if err != nil {
		a.l.Debug("source fetch failed",
			logger.String("source", a.SourceID()),
			logger.String("symbol", mc.Symbol),
			logger.Error(err),
		)
		return nil
	}
	return &opinion
}
