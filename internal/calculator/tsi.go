package calculator

import (
	"fmt"
	"math"

	"TSIWatch/internal/model"
)

const (
	DefaultLongWindow  = 25
	DefaultShortWindow = 13
)

// TSI computes the Trend Strength Indicator of prices:
//
//	tsi[i] = 100 * EMA_short(EMA_long(delta))[i] / EMA_short(EMA_long(|delta|))[i]
//
// where delta[i] = prices[i] - prices[i-1]. The result has the same length as
// prices. Index 0 has no delta and is NaN; indices where the smoothed absolute
// change is zero (flat runs) are NaN as well. Warm-up values are kept.
func TSI(prices []float64, longWindow, shortWindow int) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("tsi needs at least 2 prices, got %d: %w", len(prices), model.ErrInsufficientData)
	}
	if longWindow <= 0 || shortWindow <= 0 {
		return nil, fmt.Errorf("tsi windows must be positive (long=%d, short=%d)", longWindow, shortWindow)
	}

	delta := make([]float64, len(prices))
	absDelta := make([]float64, len(prices))
	delta[0], absDelta[0] = math.NaN(), math.NaN()
	for i := 1; i < len(prices); i++ {
		delta[i] = prices[i] - prices[i-1]
		absDelta[i] = math.Abs(delta[i])
	}

	num, err := doubleSmooth(delta, longWindow, shortWindow)
	if err != nil {
		return nil, err
	}
	den, err := doubleSmooth(absDelta, longWindow, shortWindow)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(prices))
	for i := range out {
		if math.IsNaN(num[i]) || math.IsNaN(den[i]) || den[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		// |EMA(x)| <= EMA(|x|) holds exactly; clamp the rounding noise.
		out[i] = math.Max(-100, math.Min(100, 100*num[i]/den[i]))
	}
	return out, nil
}

func doubleSmooth(values []float64, longWindow, shortWindow int) ([]float64, error) {
	first, err := EMA(values, longWindow)
	if err != nil {
		return nil, err
	}
	return EMA(first, shortWindow)
}

// CalculateTSI computes the indicator series for one ticker's price series.
func CalculateTSI(series model.PriceSeries, longWindow, shortWindow int) (model.TsiSeries, error) {
	values, err := TSI(series.Prices(), longWindow, shortWindow)
	if err != nil {
		return model.TsiSeries{Ticker: series.Ticker}, fmt.Errorf("%s: %w", series.Ticker, err)
	}
	points := make([]model.TsiPoint, len(values))
	for i, v := range values {
		points[i] = model.TsiPoint{
			Date:    series.Points[i].Date,
			Value:   v,
			Defined: !math.IsNaN(v),
		}
	}
	return model.TsiSeries{Ticker: series.Ticker, Points: points}, nil
}
