package consensus

import (
	"fmt"
	"math"
	"sort"

	"Argo/internal/domain/models"
)

// Weights maps source id to its share of the vote. A valid set sums to 1.
type Weights map[string]float64

func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("weights: empty source set")
	}
	var sum float64
	for id, v := range w {
		if v <= 0 || math.IsNaN(v) {
			return fmt.Errorf("weights: source %s has non-positive weight %v", id, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights: sum is %.6f, want 1.0", sum)
	}
	return nil
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// RegimeWeightTable holds per-regime multipliers. A source without an entry
// keeps multiplier 1.
type RegimeWeightTable map[models.RegimeLabel]map[string]float64

// DefaultRegimeWeightTable down-weights sentiment and leans on technicals when
// volatility is high, and trusts trend followers in trending markets.
func DefaultRegimeWeightTable() RegimeWeightTable {
	return RegimeWeightTable{
		models.RegimeHighVolatility: {"sentiment": 0.5, "technical": 1.5, "market_data": 1.2},
		models.RegimeTrending:       {"technical": 1.3, "market_data": 1.2},
		models.RegimeChoppy:         {"technical": 0.7, "sentiment": 1.2},
	}
}

// Apply multiplies base weights by the regime's multipliers and renormalizes
// over the full source set so the result sums to 1 again.
func (t RegimeWeightTable) Apply(base Weights, regime models.RegimeLabel) Weights {
	mult := t[regime]
	if len(mult) == 0 {
		return base.clone()
	}

	ids := make([]string, 0, len(base))
	for id := range base {
		ids = append(ids, id)
	}
	// fixed summation order keeps repeated calls bit-identical
	sort.Strings(ids)

	out := make(Weights, len(base))
	var sum float64
	for _, id := range ids {
		w := base[id]
		m, ok := mult[id]
		if !ok || m <= 0 {
			m = 1
		}
		out[id] = w * m
		sum += out[id]
	}
	if sum <= 0 {
		return base.clone()
	}
	for id := range out {
		out[id] /= sum
	}
	return out
}
