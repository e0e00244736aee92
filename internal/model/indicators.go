package model

import "time"

// TsiPoint is one Trend Strength Indicator value. Defined is false where the
// indicator has no value (no price change yet, or a flat price run); Value is
// NaN in that case.
type TsiPoint struct {
	Date    time.Time
	Value   float64
	Defined bool
}

// TsiSeries is the indicator series of one ticker, aligned with its PriceSeries.
type TsiSeries struct {
	Ticker string
	Points []TsiPoint
}

// Latest returns the most recent defined value.
func (s TsiSeries) Latest() (TsiPoint, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Defined {
			return s.Points[i], true
		}
	}
	return TsiPoint{}, false
}

// ValuePoint is the aggregate portfolio value on one trading day.
type ValuePoint struct {
	Date  time.Time
	Value float64
}

// ValueSeries is a chronological aggregate value series.
type ValueSeries []ValuePoint

// OfficialReference maps ticker to an externally published TSI value. It is
// only shown next to computed values and never feeds any computation.
type OfficialReference map[string]float64

// Comparison is one row of the computed-vs-official TSI table.
type Comparison struct {
	Ticker      string
	Computed    TsiPoint
	Official    float64
	HasOfficial bool
}

// Difference returns Computed - Official when both sides have a value.
func (c Comparison) Difference() (float64, bool) {
	if !c.Computed.Defined || !c.HasOfficial {
		return 0, false
	}
	return c.Computed.Value - c.Official, true
}
