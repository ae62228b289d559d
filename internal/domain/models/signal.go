package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionLong, DirectionShort, DirectionNeutral:
		return true
	}
	return false
}

// Actionable reports whether the direction would open a position.
func (d Direction) Actionable() bool {
	return d == DirectionLong || d == DirectionShort
}

type SignalStatus string

const (
	StatusOpen    SignalStatus = "OPEN"
	StatusClosed  SignalStatus = "CLOSED"
	StatusExpired SignalStatus = "EXPIRED"
)

// Outcome is empty while the signal is OPEN.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeExpired Outcome = "EXPIRED"
)

var (
	ErrSignalNotFound    = errors.New("signal not found")
	ErrSignalNotOpen     = errors.New("signal is not open")
	ErrSignalTampered    = errors.New("signal content hash mismatch")
	ErrInvalidTransition = errors.New("invalid signal transition")
)

// Signal is the durable record of one published decision. The hashed fields
// (symbol, direction, prices, raw confidence, created_at) are fixed at build
// time; only the resolution fields change afterwards, and only through Resolve.
type Signal struct {
	ID                   string       `json:"id"`
	Symbol               string       `json:"symbol"`
	Direction            Direction    `json:"direction"`
	EntryPrice           float64      `json:"entry_price"`
	StopPrice            float64      `json:"stop_price"`
	TargetPrice          float64      `json:"target_price"`
	RawConfidence        float64      `json:"raw_confidence"`
	CalibratedConfidence float64      `json:"calibrated_confidence"`
	Regime               RegimeLabel  `json:"regime"`
	Reasoning            string       `json:"reasoning"`
	ContentHash          string       `json:"content_hash"`
	CreatedAt            time.Time    `json:"created_at"`
	Status               SignalStatus `json:"status"`
	Outcome              Outcome      `json:"outcome,omitempty"`
	ExitPrice            *float64     `json:"exit_price,omitempty"`
	PnLPct               *float64     `json:"pnl_pct,omitempty"`
	ClosedAt             *time.Time   `json:"closed_at,omitempty"`
}

// hashedFields is the canonical form: keys in lexical order, UTC timestamp
// with fixed millisecond precision.
type hashedFields struct {
	CreatedAt     string    `json:"created_at"`
	Direction     Direction `json:"direction"`
	EntryPrice    float64   `json:"entry_price"`
	RawConfidence float64   `json:"raw_confidence"`
	StopPrice     float64   `json:"stop_price"`
	Symbol        string    `json:"symbol"`
	TargetPrice   float64   `json:"target_price"`
}

const canonicalTimeLayout = "2006-01-02T15:04:05.000Z"

// ComputeContentHash returns the hex SHA-256 of the canonical JSON of the hashed fields.
func ComputeContentHash(s Signal) string {
	payload, err := json.Marshal(hashedFields{
		CreatedAt:     s.CreatedAt.UTC().Format(canonicalTimeLayout),
		Direction:     s.Direction,
		EntryPrice:    s.EntryPrice,
		RawConfidence: s.RawConfidence,
		StopPrice:     s.StopPrice,
		Symbol:        s.Symbol,
		TargetPrice:   s.TargetPrice,
	})
	if err != nil {
		// only plain strings and finite floats are marshalled here
		panic(fmt.Sprintf("signal canonical json: %v", err))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s Signal) VerifyHash() bool {
	return s.ContentHash != "" && s.ContentHash == ComputeContentHash(s)
}

func (s Signal) IsOpen() bool {
	return s.Status == StatusOpen
}

// Resolution is what the outcome tracker decided for an open signal.
type Resolution struct {
	Outcome   Outcome
	ExitPrice float64
	ClosedAt  time.Time
}

// Resolve returns a copy of s with the resolution applied. It refuses signals
// that are no longer OPEN and signals whose hashed fields were altered.
func (s Signal) Resolve(r Resolution) (Signal, error) {
	if !s.IsOpen() {
		return s, ErrSignalNotOpen
	}
	if !s.VerifyHash() {
		return s, fmt.Errorf("resolve %s: %w", s.ID, ErrSignalTampered)
	}

	var status SignalStatus
	switch r.Outcome {
	case OutcomeWin, OutcomeLoss:
		status = StatusClosed
	case OutcomeExpired:
		status = StatusExpired
	default:
		return s, fmt.Errorf("resolve %s to %q: %w", s.ID, r.Outcome, ErrInvalidTransition)
	}

	exit := r.ExitPrice
	pnl := PnLPercent(s.Direction, s.EntryPrice, exit)
	closedAt := r.ClosedAt.UTC()

	out := s
	out.Status = status
	out.Outcome = r.Outcome
	out.ExitPrice = &exit
	out.PnLPct = &pnl
	out.ClosedAt = &closedAt
	return out, nil
}

// PnLPercent is the signed return of the position in percent, rounded to 4 places.
func PnLPercent(dir Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	move := decimal.NewFromFloat(exit).Sub(e)
	if dir == DirectionShort {
		move = move.Neg()
	}
	pct, _ := move.Div(e).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	return pct
}
