package features

import "math"

// SMA is the simple moving average of the last n values; 0 if there are fewer.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// RSI is Wilder's relative strength index over period bars, in [0,100].
// Returns 50 when there is not enough data.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Momentum is the fractional change over the last n bars.
func Momentum(closes []float64, n int) float64 {
	if n <= 0 || len(closes) <= n {
		return 0
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0
	}
	return closes[len(closes)-1]/base - 1
}

// EfficiencyRatio is Kaufman's |net move| / sum(|bar moves|) over the last n
// bars, in [0,1]. Near 1 the market trends, near 0 it chops.
func EfficiencyRatio(closes []float64, n int) float64 {
	if n <= 0 || len(closes) <= n {
		return 0
	}
	window := closes[len(closes)-1-n:]
	net := math.Abs(window[len(window)-1] - window[0])
	var path float64
	for i := 1; i < len(window); i++ {
		path += math.Abs(window[i] - window[i-1])
	}
	if path == 0 {
		return 0
	}
	return net / path
}
