// Package stoploss flags holdings whose daily decline reached their stop-loss limit.
package stoploss

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"TSIWatch/internal/model"
)

// Evaluate checks every ticker of order against its limit. A ticker missing from
// current, previous or limits is skipped with a warning. Alerts keep the order
// of the order slice.
func Evaluate(order []string, current, previous, limits map[string]float64) ([]model.StopLossAlert, []model.Warning) {
	var alerts []model.StopLossAlert
	var warnings []model.Warning

	for _, ticker := range order {
		cur, okCur := current[ticker]
		prev, okPrev := previous[ticker]
		limit, okLimit := limits[ticker]
		switch {
		case !okCur || !okPrev:
			warnings = append(warnings, model.Warning{
				Ticker: ticker, Kind: model.WarnDataUnavailable,
				Message: "missing current or previous price, stop-loss not checked",
			})
			continue
		case !okLimit:
			warnings = append(warnings, model.Warning{
				Ticker: ticker, Kind: model.WarnValidation,
				Message: "no stop-loss limit configured",
			})
			continue
		case prev <= 0:
			warnings = append(warnings, model.Warning{
				Ticker: ticker, Kind: model.WarnDataUnavailable,
				Message: fmt.Sprintf("previous price %.4f is not positive", prev),
			})
			continue
		}

		// The limit applies to the exact drop; only the reported figure is rounded.
		if rawDrop(prev, cur).GreaterThanOrEqual(decimal.NewFromFloat(limit)) {
			alerts = append(alerts, model.StopLossAlert{
				Ticker:        ticker,
				CurrentPrice:  cur,
				PreviousPrice: prev,
				PercentDrop:   PercentDrop(prev, cur),
				Limit:         limit,
			})
		}
	}
	return alerts, warnings
}

// PercentDrop returns (previous-current)/previous*100 rounded to 2 decimals.
// A rise yields a negative drop.
func PercentDrop(previous, current float64) float64 {
	return rawDrop(previous, current).Round(2).InexactFloat64()
}

func rawDrop(previous, current float64) decimal.Decimal {
	p := decimal.NewFromFloat(previous)
	c := decimal.NewFromFloat(current)
	return p.Sub(c).Div(p).Mul(decimal.NewFromInt(100))
}

// PricesFromSeries takes the last two points of each series as current and
// previous price. Tickers with fewer than two points get an insufficient-data
// warning; tickers without a series get a data-unavailable warning.
func PricesFromSeries(order []string, series map[string]model.PriceSeries) (current, previous map[string]float64, warnings []model.Warning) {
	current = make(map[string]float64, len(order))
	previous = make(map[string]float64, len(order))
	for _, ticker := range order {
		s, ok := series[ticker]
		switch {
		case !ok || s.Len() == 0:
			warnings = append(warnings, model.Warning{
				Ticker: ticker, Kind: model.WarnDataUnavailable, Message: "no price data",
			})
			continue
		case s.Len() < 2:
			warnings = append(warnings, model.WarningFromError(ticker,
				fmt.Errorf("stop-loss needs 2 prices, got %d: %w", s.Len(), model.ErrInsufficientData)))
			continue
		}
		n := s.Len()
		current[ticker] = s.Points[n-1].Price
		previous[ticker] = s.Points[n-2].Price
	}
	return current, previous, warnings
}

// SortBySeverity orders alerts by descending drop, then ticker. It sorts in place
// and returns alerts for chaining.
func SortBySeverity(alerts []model.StopLossAlert) []model.StopLossAlert {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].PercentDrop != alerts[j].PercentDrop {
			return alerts[i].PercentDrop > alerts[j].PercentDrop
		}
		return alerts[i].Ticker < alerts[j].Ticker
	})
	return alerts
}
