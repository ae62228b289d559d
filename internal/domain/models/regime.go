package models

import "time"

type RegimeLabel string

const (
	RegimeNeutral        RegimeLabel = "NEUTRAL"
	RegimeTrending       RegimeLabel = "TRENDING"
	RegimeChoppy         RegimeLabel = "CHOPPY"
	RegimeHighVolatility RegimeLabel = "HIGH_VOLATILITY"
)

func (r RegimeLabel) Valid() bool {
	switch r {
	case RegimeNeutral, RegimeTrending, RegimeChoppy, RegimeHighVolatility:
		return true
	}
	return false
}

type Regime struct {
	Symbol     string
	Timestamp  time.Time
	Label      RegimeLabel
	Confidence float64
	Detector   string // "remote" or "local"
}
