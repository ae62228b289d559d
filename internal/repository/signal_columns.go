package repository

import (
	"database/sql"
	"time"

	"Argo/internal/domain/models"
)

const signalColumns = "id, symbol, direction, entry_price, stop_price, target_price, raw_confidence, calibrated_confidence, regime, reasoning, content_hash, created_at, status, outcome, exit_price, pnl_pct, closed_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSignal reads one row laid out as signalColumns.
func scanSignal(r rowScanner) (models.Signal, error) {
	var (
		s         models.Signal
		direction string
		regime    string
		status    string
		outcome   string
		exitPrice sql.NullFloat64
		pnlPct    sql.NullFloat64
		closedAt  sql.NullTime
	)
	err := r.Scan(&s.ID, &s.Symbol, &direction, &s.EntryPrice, &s.StopPrice, &s.TargetPrice,
		&s.RawConfidence, &s.CalibratedConfidence, &regime, &s.Reasoning, &s.ContentHash,
		&s.CreatedAt, &status, &outcome, &exitPrice, &pnlPct, &closedAt)
	if err != nil {
		return models.Signal{}, err
	}

	s.Direction = models.Direction(direction)
	s.Regime = models.RegimeLabel(regime)
	s.Status = models.SignalStatus(status)
	s.Outcome = models.Outcome(outcome)
	s.CreatedAt = s.CreatedAt.UTC()
	if exitPrice.Valid {
		v := exitPrice.Float64
		s.ExitPrice = &v
	}
	if pnlPct.Valid {
		v := pnlPct.Float64
		s.PnLPct = &v
	}
	if closedAt.Valid {
		v := closedAt.Time.UTC()
		s.ClosedAt = &v
	}
	return s, nil
}

// signalArgs flattens s in signalColumns order.
func signalArgs(s models.Signal) []interface{} {
	return []interface{}{
		s.ID, s.Symbol, string(s.Direction), s.EntryPrice, s.StopPrice, s.TargetPrice,
		s.RawConfidence, s.CalibratedConfidence, string(s.Regime), s.Reasoning, s.ContentHash,
		s.CreatedAt.UTC(), string(s.Status), string(s.Outcome),
		nullFloat(s.ExitPrice), nullFloat(s.PnLPct), nullTime(s.ClosedAt),
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 5000 {
		return 5000
	}
	return limit
}
