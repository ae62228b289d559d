package features

import (
	"math"

	"Argo/internal/domain/models"
)

// Closes extracts close prices, oldest first.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ComputeLogReturns computes r_t = ln(C_t / C_{t-1}); non-positive prices yield 0.
// Returns nil when fewer than two candles are given.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample stdev of the last `window` log returns.
// A window <= 1 uses every return.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || window > len(logReturns) {
		window = len(logReturns)
	}
	if window < 2 {
		return 0
	}
	var sum, sum2 float64
	for _, r := range logReturns[len(logReturns)-window:] {
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}
