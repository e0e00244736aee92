// Package valuation aggregates per-ticker price series into a weighted portfolio
// value series.
package valuation

import (
	"fmt"
	"sort"
	"time"

	"TSIWatch/internal/model"
)

// Result is the aggregate value series plus each ticker's contribution over the
// same dates. Warnings name tickers that contributed nothing.
type Result struct {
	Series        model.ValueSeries
	Contributions map[string]model.ValueSeries
	Warnings      []model.Warning
}

// Value normalizes every ticker's series by its first price, scales it by the
// ticker's investment and sums the contributions over the trading days present
// in every usable series (inner join). Tickers with no usable series contribute
// zero and are reported as warnings. Series for tickers without an investment
// are ignored.
func Value(prices map[string]model.PriceSeries, investments map[string]float64) Result {
	tickers := make([]string, 0, len(investments))
	for t := range investments {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	res := Result{Contributions: make(map[string]model.ValueSeries, len(tickers))}
	normalized := make(map[string]map[time.Time]float64, len(tickers))
	var usable []string

	for _, t := range tickers {
		amount := investments[t]
		if amount <= 0 {
			res.Warnings = append(res.Warnings, model.Warning{
				Ticker: t, Kind: model.WarnValidation,
				Message: fmt.Sprintf("non-positive investment %.2f, contribution set to zero", amount),
			})
			continue
		}
		series, ok := prices[t]
		first, hasFirst := series.First()
		if !ok || !hasFirst {
			res.Warnings = append(res.Warnings, model.Warning{
				Ticker: t, Kind: model.WarnDataUnavailable,
				Message: "no price data, contribution set to zero",
			})
			continue
		}
		if first.Price <= 0 {
			res.Warnings = append(res.Warnings, model.Warning{
				Ticker: t, Kind: model.WarnDataUnavailable,
				Message: fmt.Sprintf("first price %.4f cannot be normalized, contribution set to zero", first.Price),
			})
			continue
		}
		byDay := make(map[time.Time]float64, series.Len())
		for _, p := range series.Points {
			byDay[model.Day(p.Date)] = amount * p.Price / first.Price
		}
		normalized[t] = byDay
		usable = append(usable, t)
	}

	dates := alignedDates(usable, normalized)

	res.Series = make(model.ValueSeries, len(dates))
	for i, d := range dates {
		res.Series[i].Date = d
	}
	for _, t := range tickers {
		contrib := make(model.ValueSeries, len(dates))
		byDay := normalized[t] // nil for zero contributors
		for i, d := range dates {
			v := byDay[d]
			contrib[i] = model.ValuePoint{Date: d, Value: v}
			res.Series[i].Value += v
		}
		res.Contributions[t] = contrib
	}
	return res
}

// alignedDates returns the days present in every usable series, ascending.
func alignedDates(usable []string, normalized map[string]map[time.Time]float64) []time.Time {
	if len(usable) == 0 {
		return nil
	}
	var dates []time.Time
	for d := range normalized[usable[0]] {
		inAll := true
		for _, t := range usable[1:] {
			if _, ok := normalized[t][d]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
