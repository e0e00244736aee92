package calculator

import (
	"errors"
	"math"
)

// EMA computes the unadjusted (recursive) exponential moving average of values
// with the given span: alpha = 2/(span+1), ema[0] = x[0],
// ema[i] = alpha*x[i] + (1-alpha)*ema[i-1].
//
// NaN samples yield NaN and do not advance the average; the recursion is seeded
// by the first non-NaN sample.
func EMA(values []float64, span int) ([]float64, error) {
	if span <= 0 {
		return nil, errors.New("span must be positive")
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	prev := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
			continue
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out, nil
}
