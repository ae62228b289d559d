package consensus

import (
	"fmt"
	"math"
	"sort"

	"Argo/internal/domain/models"
)

const DefaultThreshold = 75.0

type Config struct {
	Weights     Weights
	RegimeTable RegimeWeightTable
	// MinSources is the fewest responding sources a publishable result needs.
	MinSources int
	// Threshold is compared with >= against the rounded confidence.
	Threshold float64
	EarlyExit bool
}

// Engine combines per-source opinions into a weighted consensus. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("consensus: %w", err)
	}
	if cfg.MinSources < 1 {
		cfg.MinSources = 1
	}
	if cfg.MinSources > len(cfg.Weights) {
		return nil, fmt.Errorf("consensus: min sources %d exceeds %d configured sources", cfg.MinSources, len(cfg.Weights))
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RegimeTable == nil {
		cfg.RegimeTable = RegimeWeightTable{}
	}
	cfg.Weights = cfg.Weights.clone()
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Threshold() float64 { return e.cfg.Threshold }

// SourceIDs lists configured sources in sorted order.
func (e *Engine) SourceIDs() []string {
	ids := make([]string, 0, len(e.cfg.Weights))
	for id := range e.cfg.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WeightsFor returns the regime-adjusted weights.
func (e *Engine) WeightsFor(regime models.RegimeLabel) Weights {
	return e.cfg.RegimeTable.Apply(e.cfg.Weights, regime)
}

// Evaluate always returns the combined view, publishable or not.
func (e *Engine) Evaluate(symbol string, opinions map[string]models.SourceOpinion, regime models.RegimeLabel) models.ConsensusResult {
	return evaluate(symbol, opinions, e.WeightsFor(regime), regime)
}

// Calculate returns the consensus only when it is publishable: enough
// sources responded, the direction is not NEUTRAL and the rounded confidence
// clears the threshold.
func (e *Engine) Calculate(symbol string, opinions map[string]models.SourceOpinion, regime models.RegimeLabel) *models.ConsensusResult {
	return e.gate(e.Evaluate(symbol, opinions, regime))
}

func (e *Engine) gate(r models.ConsensusResult) *models.ConsensusResult {
	if len(r.ContributingSources) < e.cfg.MinSources {
		return nil
	}
	if !r.Direction.Actionable() {
		return nil
	}
	if r.Confidence < e.cfg.Threshold {
		return nil
	}
	return &r
}

func evaluate(symbol string, opinions map[string]models.SourceOpinion, weights Weights, regime models.RegimeLabel) models.ConsensusResult {
	res := models.ConsensusResult{
		Symbol:              symbol,
		Direction:           models.DirectionNeutral,
		Regime:              regime,
		ContributingSources: []string{},
		AgreeingSources:     []string{},
	}

	votes := map[models.Direction]float64{}
	for id, op := range opinions {
		w, ok := weights[id]
		if !ok {
			continue
		}
		res.ContributingSources = append(res.ContributingSources, id)
		votes[op.Direction] += w
	}
	sort.Strings(res.ContributingSources)

	long, short, neutral := votes[models.DirectionLong], votes[models.DirectionShort], votes[models.DirectionNeutral]
	switch {
	case long > short && long > neutral:
		res.Direction = models.DirectionLong
	case short > long && short > neutral:
		res.Direction = models.DirectionShort
	}

	var score float64
	for _, id := range res.ContributingSources {
		op := opinions[id]
		if op.Direction != res.Direction {
			continue
		}
		res.AgreeingSources = append(res.AgreeingSources, id)
		score += weights[id] * op.RawConfidence
	}
	res.Confidence = round1(score * 100)
	return res
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
