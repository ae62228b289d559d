package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"Argo/internal/domain/models"
	domsvc "Argo/internal/domain/service"
	"Argo/internal/services/features"
)

// HTTPEdgeScorer is the AI-model opinion source: it posts engineered features
// to the edge model and turns proba_up into a directional opinion.
type HTTPEdgeScorer struct {
	id       string
	base     *HTTPServiceBase
	horizon  string
	deadband float64
}

func NewHTTPEdgeScorer(sourceID string, base *HTTPServiceBase, horizon string) *HTTPEdgeScorer {
	if horizon == "" {
		horizon = "15m"
	}
	return &HTTPEdgeScorer{id: sourceID, base: base, horizon: horizon, deadband: 0.02}
}

type edgeReq struct {
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
	Horizon  string             `json:"horizon"`
}

type edgeResp struct {
	ProbaUp    float64 `json:"proba_up"`
	Regime     string  `json:"regime"`
	Sigma      float64 `json:"sigma"`
	Confidence float64 `json:"confidence"`
}

func (s *HTTPEdgeScorer) SourceID() string { return s.id }

func (s *HTTPEdgeScorer) FetchOpinion(ctx context.Context, mc models.MarketContext) (models.SourceOpinion, error) {
	var er edgeResp
	req := edgeReq{Symbol: mc.Symbol, Features: edgeFeatures(mc), Horizon: s.horizon}
	if err := s.base.PostJSON(ctx, "/edge/predict", req, &er); err != nil {
		return models.SourceOpinion{}, fmt.Errorf("edge predict %s: %w", mc.Symbol, err)
	}
	if er.ProbaUp < 0 || er.ProbaUp > 1 || math.IsNaN(er.ProbaUp) {
		return models.SourceOpinion{}, fmt.Errorf("edge predict %s: proba_up %v out of range", mc.Symbol, er.ProbaUp)
	}

	dir := models.DirectionNeutral
	switch {
	case er.ProbaUp >= 0.5+s.deadband:
		dir = models.DirectionLong
	case er.ProbaUp <= 0.5-s.deadband:
		dir = models.DirectionShort
	}

	return models.SourceOpinion{
		SourceID:      s.id,
		Direction:     dir,
		RawConfidence: math.Max(er.ProbaUp, 1-er.ProbaUp),
		ObservedAt:    time.Now().UTC(),
		Reason:        fmt.Sprintf("proba_up=%.3f horizon=%s", er.ProbaUp, s.horizon),
	}, nil
}

func edgeFeatures(mc models.MarketContext) map[string]float64 {
	closes := features.Closes(mc.Series)
	return map[string]float64{
		"ret_1":      features.Momentum(closes, 1),
		"ret_5":      features.Momentum(closes, 5),
		"ret_20":     features.Momentum(closes, 20),
		"rsi_14":     features.RSI(closes, 14),
		"volatility": mc.Volatility,
	}
}

var _ domsvc.OpinionFetcher = (*HTTPEdgeScorer)(nil)
