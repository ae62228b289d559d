package calibration

import (
	"math"
	"sort"
)

// Curve is a non-decreasing piecewise-linear map from raw confidence to
// calibrated confidence, both on the 0..100 scale.
type Curve struct {
	X       []float64 `json:"x"`
	Y       []float64 `json:"y"`
	Samples int       `json:"samples"`
}

// Apply interpolates between knots and clamps outside them.
func (c *Curve) Apply(raw float64) float64 {
	n := len(c.X)
	if n == 0 {
		return raw
	}
	if raw <= c.X[0] {
		return c.Y[0]
	}
	if raw >= c.X[n-1] {
		return c.Y[n-1]
	}
	i := sort.SearchFloat64s(c.X, raw)
	x0, x1 := c.X[i-1], c.X[i]
	y0, y1 := c.Y[i-1], c.Y[i]
	if x1 == x0 {
		return y1
	}
	return y0 + (y1-y0)*(raw-x0)/(x1-x0)
}

type sample struct {
	raw float64
	win bool
}

type block struct {
	x      float64 // weighted mean raw
	y      float64 // weighted mean win rate
	weight float64
}

// fitCurve buckets samples by raw confidence and runs pool-adjacent-violators
// on the bucket win rates.
func fitCurve(samples []sample, bucketWidth float64) (*Curve, bool) {
	if len(samples) == 0 || bucketWidth <= 0 {
		return nil, false
	}

	buckets := map[int]*block{}
	for _, s := range samples {
		if math.IsNaN(s.raw) || math.IsInf(s.raw, 0) {
			return nil, false
		}
		k := int(math.Floor(s.raw / bucketWidth))
		b, ok := buckets[k]
		if !ok {
			b = &block{}
			buckets[k] = b
		}
		b.x += s.raw
		if s.win {
			b.y++
		}
		b.weight++
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	stack := make([]block, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		cur := block{x: b.x / b.weight, y: b.y / b.weight, weight: b.weight}
		for len(stack) > 0 && stack[len(stack)-1].y > cur.y {
			prev := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			w := prev.weight + cur.weight
			cur = block{
				x:      (prev.x*prev.weight + cur.x*cur.weight) / w,
				y:      (prev.y*prev.weight + cur.y*cur.weight) / w,
				weight: w,
			}
		}
		stack = append(stack, cur)
	}

	c := &Curve{X: make([]float64, len(stack)), Y: make([]float64, len(stack)), Samples: len(samples)}
	for i, b := range stack {
		c.X[i] = b.x
		c.Y[i] = math.Round(b.y*1000) / 10
	}
	return c, true
}
