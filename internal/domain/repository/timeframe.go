package repository

import "time"

func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TF1d:
		return true
	}
	return false
}

func DefaultTimeframe() Timeframe { return TF5m }

// NormalizeTimeframe maps a raw string to a supported timeframe or the default.
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 5 * time.Minute
}

// BarsPerYear is used to annualize per-bar volatility. Markets are treated as
// trading around the clock, which matches crypto and overstates equities by a
// constant factor that the volatility thresholds absorb.
func (tf Timeframe) BarsPerYear() float64 {
	return float64(365*24*time.Hour) / float64(tf.Duration())
}
