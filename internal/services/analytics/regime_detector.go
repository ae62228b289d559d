package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	domsvc "Argo/internal/domain/service"
	"Argo/internal/services/features"
	"Argo/pkg/logger"
)

// HTTPRegimeDetector asks the remote regime model to classify recent returns.
type HTTPRegimeDetector struct {
	base *HTTPServiceBase
}

func NewHTTPRegimeDetector(base *HTTPServiceBase) *HTTPRegimeDetector {
	return &HTTPRegimeDetector{base: base}
}

type regimeRequest struct {
	Symbol  string    `json:"symbol"`
	Returns []float64 `json:"returns"`
}

type regimeResponse struct {
	State      string    `json:"state"`
	Prob       []float64 `json:"prob"`
	Confidence float64   `json:"confidence"`
}

func (d *HTTPRegimeDetector) Detect(ctx context.Context, mc models.MarketContext) (models.Regime, error) {
	var rr regimeResponse
	req := regimeRequest{Symbol: mc.Symbol, Returns: features.ComputeLogReturns(mc.Series)}
	if err := d.base.PostJSONWithRetry(ctx, "/regime/detect", req, &rr, 2); err != nil {
		return models.Regime{}, fmt.Errorf("regime detect %s: %w", mc.Symbol, err)
	}
	return models.Regime{
		Symbol:     mc.Symbol,
		Timestamp:  time.Now().UTC(),
		Label:      mapRegimeState(rr.State),
		Confidence: rr.Confidence,
		Detector:   "remote",
	}, nil
}

func mapRegimeState(state string) models.RegimeLabel {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "trending", "bull", "bear", "trend":
		return models.RegimeTrending
	case "choppy", "quiet", "range", "ranging", "mean_reverting":
		return models.RegimeChoppy
	case "volatile", "high_volatility", "high_vol", "crisis":
		return models.RegimeHighVolatility
	}
	return models.RegimeNeutral
}

// LocalRegimeDetector classifies from the price series alone: annualized
// volatility above HighVolatility wins, then the efficiency ratio separates
// trending from choppy markets.
type LocalRegimeDetector struct {
	HighVolatility float64
	TrendingER     float64
	ChoppyER       float64
	MinBars        int
	Timeframe      repository.Timeframe
}

func (d LocalRegimeDetector) Detect(_ context.Context, mc models.MarketContext) (models.Regime, error) {
	r := models.Regime{Symbol: mc.Symbol, Timestamp: time.Now().UTC(), Label: models.RegimeNeutral, Detector: "local"}
	if len(mc.Series) < d.MinBars || len(mc.Series) < 3 {
		return r, nil
	}

	vol := mc.Volatility
	if vol == 0 {
		vol = features.RealizedVolatility(features.ComputeLogReturns(mc.Series), 0, d.Timeframe.BarsPerYear())
	}
	er := features.EfficiencyRatio(features.Closes(mc.Series), len(mc.Series)-1)

	switch {
	case d.HighVolatility > 0 && vol >= d.HighVolatility:
		r.Label = models.RegimeHighVolatility
		r.Confidence = clamp01(vol / (2 * d.HighVolatility))
	case er >= d.TrendingER:
		r.Label = models.RegimeTrending
		r.Confidence = er
	case er <= d.ChoppyER:
		r.Label = models.RegimeChoppy
		r.Confidence = 1 - er
	default:
		r.Confidence = 0.5
	}
	return r, nil
}

// FallbackRegimeDetector uses the remote model when it answers and the local
// classifier otherwise. Regime detection never fails a symbol task.
type FallbackRegimeDetector struct {
	primary  domsvc.RegimeDetector
	fallback domsvc.RegimeDetector
	l        *logger.Logger
}

func NewFallbackRegimeDetector(primary, fallback domsvc.RegimeDetector, l *logger.Logger) *FallbackRegimeDetector {
	return &FallbackRegimeDetector{primary: primary, fallback: fallback, l: l}
}

func (d *FallbackRegimeDetector) Detect(ctx context.Context, mc models.MarketContext) (models.Regime, error) {
	if d.primary != nil {
		r, err := d.primary.Detect(ctx, mc)
		if err == nil {
			return r, nil
		}
		d.l.Debug("remote regime detection failed, using local",
			logger.String("symbol", mc.Symbol),
			logger.Error(err),
		)
	}
	r, err := d.fallback.Detect(ctx, mc)
	if err != nil {
		return models.Regime{Symbol: mc.Symbol, Label: models.RegimeNeutral, Detector: "none"}, nil
	}
	return r, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	_ domsvc.RegimeDetector = (*HTTPRegimeDetector)(nil)
	_ domsvc.RegimeDetector = LocalRegimeDetector{}
	_ domsvc.RegimeDetector = (*FallbackRegimeDetector)(nil)
)
