package model

import (
	"sort"
	"time"
)

// PricePoint is one closing price on a trading day.
type PricePoint struct {
	Date  time.Time
	Price float64
}

// PriceSeries holds the chronological closing prices of one ticker.
type PriceSeries struct {
	Ticker string
	Points []PricePoint
}

// Prices returns the raw price values in series order.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Len returns the number of points.
func (s PriceSeries) Len() int { return len(s.Points) }

// First returns the earliest point. ok is false for an empty series.
func (s PriceSeries) First() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[0], true
}

// Last returns the latest point. ok is false for an empty series.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Day truncates t to its calendar day in t's own location, returned in UTC so
// that days from different exchanges compare equal.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewPriceSeries sorts points chronologically and keeps the last price seen
// for each trading day.
func NewPriceSeries(ticker string, points []PricePoint) PriceSeries {
	sorted := make([]PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]PricePoint, 0, len(sorted))
	for _, p := range sorted {
		p.Date = Day(p.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return PriceSeries{Ticker: ticker, Points: out}
}

// Quote is a latest traded price. Time is when it traded, in the exchange's
// location; a zero Time means the source did not say.
type Quote struct {
	Price float64
	Time  time.Time
}

// Period is a history lookback understood by the gateways ("1mo", "6mo", "1y", ...).
type Period string

const (
	Period1Month  Period = "1mo"
	Period3Months Period = "3mo"
	Period6Months Period = "6mo"
	Period1Year   Period = "1y"
	Period2Years  Period = "2y"
)
