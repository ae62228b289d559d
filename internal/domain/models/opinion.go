package models

import (
	"fmt"
	"time"
)

// SourceOpinion is one upstream's view of a symbol for a single cycle.
type SourceOpinion struct {
	SourceID      string    `json:"source_id"`
	Direction     Direction `json:"direction"`
	RawConfidence float64   `json:"raw_confidence"`
	ObservedAt    time.Time `json:"observed_at"`
	Reason        string    `json:"reason,omitempty"`
}

// Validate rejects unknown directions and confidences outside [0,1].
func (o SourceOpinion) Validate() error {
	if o.SourceID == "" {
		return fmt.Errorf("opinion: empty source id")
	}
	if !o.Direction.Valid() {
		return fmt.Errorf("opinion %s: invalid direction %q", o.SourceID, o.Direction)
	}
	if o.RawConfidence < 0 || o.RawConfidence > 1 || o.RawConfidence != o.RawConfidence {
		return fmt.Errorf("opinion %s: raw confidence %v outside [0,1]", o.SourceID, o.RawConfidence)
	}
	return nil
}

// ConsensusResult is the combined judgment for one symbol in one cycle.
// Confidence is on the 0..100 scale, rounded to one decimal.
type ConsensusResult struct {
	Symbol              string      `json:"symbol"`
	Direction           Direction   `json:"direction"`
	Confidence          float64     `json:"confidence"`
	ContributingSources []string    `json:"contributing_sources"`
	AgreeingSources     []string    `json:"agreeing_sources"`
	Partial             bool        `json:"partial"`
	Regime              RegimeLabel `json:"regime"`
}
