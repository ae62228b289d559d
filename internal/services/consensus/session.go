package consensus

import (
	"sort"

	"Argo/internal/domain/models"
)

// Session feeds opinions to the engine as they arrive. After every arrival
// it checks whether the best confidence still reachable, with every pending
// source agreeing at full confidence, can clear the threshold. When it cannot,
// the session stops early and the result is marked partial.
//
// A Session is owned by one symbol task and is not safe for concurrent use.
type Session struct {
	engine   *Engine
	symbol   string
	regime   models.RegimeLabel
	weights  Weights
	pending  map[string]bool
	opinions map[string]models.SourceOpinion
	exited   bool
}

func (e *Engine) NewSession(symbol string, regime models.RegimeLabel) *Session {
	weights := e.WeightsFor(regime)
	pending := make(map[string]bool, len(weights))
	for id := range weights {
		pending[id] = true
	}
	return &Session{
		engine:   e,
		symbol:   symbol,
		regime:   regime,
		weights:  weights,
		pending:  pending,
		opinions: make(map[string]models.SourceOpinion, len(weights)),
	}
}

// Add records an opinion and reports whether the session should stop waiting.
func (s *Session) Add(op models.SourceOpinion) bool {
	if !s.pending[op.SourceID] {
		return s.Done()
	}
	delete(s.pending, op.SourceID)
	s.opinions[op.SourceID] = op
	return s.check()
}

// MarkMissing records that a source will not answer this cycle.
func (s *Session) MarkMissing(sourceID string) bool {
	if !s.pending[sourceID] {
		return s.Done()
	}
	delete(s.pending, sourceID)
	return s.check()
}

func (s *Session) check() bool {
	if s.engine.cfg.EarlyExit && len(s.pending) > 0 && s.Ceiling() < s.engine.cfg.Threshold {
		s.exited = true
	}
	return s.Done()
}

// Done is true once every source is accounted for or the session exited early.
func (s *Session) Done() bool {
	return s.exited || len(s.pending) == 0
}

func (s *Session) ExitedEarly() bool { return s.exited }

// Pending lists sources still awaited, sorted.
func (s *Session) Pending() []string {
	out := make([]string, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Ceiling is the highest rounded confidence any final result could reach.
func (s *Session) Ceiling() float64 {
	var remaining float64
	for id := range s.pending {
		remaining += s.weights[id]
	}
	best := 0.0
	for _, dir := range []models.Direction{models.DirectionLong, models.DirectionShort} {
		acc := remaining
		for id, op := range s.opinions {
			if op.Direction == dir {
				acc += s.weights[id] * op.RawConfidence
			}
		}
		if acc > best {
			best = acc
		}
	}
	return round1(best * 100)
}

// Evaluate returns the view over the opinions received so far.
func (s *Session) Evaluate() models.ConsensusResult {
	r := evaluate(s.symbol, s.opinions, s.weights, s.regime)
	r.Partial = s.exited || len(s.pending) > 0
	return r
}

// Calculate is the publishable result, nil after an early exit.
func (s *Session) Calculate() *models.ConsensusResult {
	if s.exited {
		return nil
	}
	return s.engine.gate(s.Evaluate())
}
