package builder

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Argo/internal/domain/models"
	domsvc "Argo/internal/domain/service"
	"Argo/pkg/util"
)

var (
	ErrNotActionable = errors.New("consensus direction is not actionable")
	ErrNoPrice       = errors.New("no usable entry price")
)

// pricePlaces keeps sub-cent crypto quotes meaningful.
const pricePlaces = 8

type RiskConfig struct {
	StopPct   float64
	TargetPct float64
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{StopPct: 0.03, TargetPct: 0.05}
}

// Builder turns a publishable consensus into a hashed, OPEN signal. Nothing
// downstream may change the hashed fields it sets.
type Builder struct {
	risk       RiskConfig
	calibrator domsvc.Calibrator
	now        func() time.Time
	newID      func() string
}

func New(risk RiskConfig, calibrator domsvc.Calibrator) *Builder {
	if risk.StopPct <= 0 || risk.TargetPct <= 0 {
		risk = DefaultRiskConfig()
	}
	return &Builder{
		risk:       risk,
		calibrator: calibrator,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

func (b *Builder) Build(res models.ConsensusResult, mc models.MarketContext) (models.Signal, error) {
	if !res.Direction.Actionable() {
		return models.Signal{}, fmt.Errorf("build %s: %w", res.Symbol, ErrNotActionable)
	}
	if mc.Price <= 0 || math.IsNaN(mc.Price) || math.IsInf(mc.Price, 0) {
		return models.Signal{}, fmt.Errorf("build %s: %w", res.Symbol, ErrNoPrice)
	}

	entry := decimal.NewFromFloat(mc.Price)
	stopMove := entry.Mul(decimal.NewFromFloat(b.risk.StopPct))
	targetMove := entry.Mul(decimal.NewFromFloat(b.risk.TargetPct))

	var stop, target decimal.Decimal
	if res.Direction == models.DirectionLong {
		stop, target = entry.Sub(stopMove), entry.Add(targetMove)
	} else {
		stop, target = entry.Add(stopMove), entry.Sub(targetMove)
	}

	calibrated := res.Confidence
	if b.calibrator != nil {
		calibrated = b.calibrator.Calibrate(res.Symbol, res.Confidence)
	}
	calibrated = math.Round(math.Min(math.Max(calibrated, 0), 100)*10) / 10

	s := models.Signal{
		ID:                   b.newID(),
		Symbol:               res.Symbol,
		Direction:            res.Direction,
		EntryPrice:           entry.Round(pricePlaces).InexactFloat64(),
		StopPrice:            stop.Round(pricePlaces).InexactFloat64(),
		TargetPrice:          target.Round(pricePlaces).InexactFloat64(),
		RawConfidence:        res.Confidence,
		CalibratedConfidence: calibrated,
		Regime:               res.Regime,
		Reasoning:            reasoning(res),
		CreatedAt:            util.TruncateMillis(b.now().UTC()),
		Status:               models.StatusOpen,
	}
	s.ContentHash = models.ComputeContentHash(s)
	return s, nil
}

func reasoning(res models.ConsensusResult) string {
	agree := make(map[string]bool, len(res.AgreeingSources))
	for _, id := range res.AgreeingSources {
		agree[id] = true
	}
	var dissent []string
	for _, id := range res.ContributingSources {
		if !agree[id] {
			dissent = append(dissent, id)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s consensus %.1f in %s regime; agree: %s", res.Direction, res.Confidence, res.Regime, strings.Join(res.AgreeingSources, ","))
	if len(dissent) > 0 {
		fmt.Fprintf(&sb, "; dissent: %s", strings.Join(dissent, ","))
	}
	if res.Partial {
		sb.WriteString("; partial")
	}
	return sb.String()
}
