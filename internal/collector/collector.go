package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TSIWatch/internal/calculator"
	"TSIWatch/internal/logger"
	"TSIWatch/internal/model"
	"TSIWatch/internal/stoploss"
	"TSIWatch/internal/valuation"
)

// Options tune one analysis run.
type Options struct {
	Period      model.Period
	LongWindow  int
	ShortWindow int
	// Reference is shown next to computed TSI values; it is never used in a computation.
	Reference model.OfficialReference
	// LiveQuotes overlays Gateway.FetchCurrent on the last closes for stop-loss
	// checks when the quote is not older than the last bar.
	LiveQuotes bool
}

// Report is the full output of one run. Every ticker in it comes from the
// analyzed portfolio.
type Report struct {
	Trigger     model.Trigger
	GeneratedAt time.Time
	Source      string
	Portfolio   *model.Portfolio

	Prices        map[string]model.PriceSeries
	Value         model.ValueSeries
	Contributions map[string]model.ValueSeries
	TSI           map[string]model.TsiSeries
	Comparison    []model.Comparison
	Alerts        []model.StopLossAlert
	Warnings      []model.Warning
}

// Latest returns the last aggregate value.
func (r *Report) Latest() (model.ValuePoint, bool) {
	if len(r.Value) == 0 {
		return model.ValuePoint{}, false
	}
	return r.Value[len(r.Value)-1], true
}

// Collector orchestrates price fetching and all computations of a run. It
// holds no state between runs.
type Collector struct {
	Gateway Gateway
	Options Options
	Log     *logger.Logger
	Now     func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(gw Gateway, opts Options, log *logger.Logger) *Collector {
	if opts.LongWindow == 0 {
		opts.LongWindow = calculator.DefaultLongWindow
	}
	if opts.ShortWindow == 0 {
		opts.ShortWindow = calculator.DefaultShortWindow
	}
	if opts.Period == "" {
		opts.Period = model.Period1Year
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{Gateway: gw, Options: opts, Log: log, Now: time.Now}
}

type run struct {
	report *Report
	seen   map[string]bool
	log    *logger.Logger
}

func (r *run) warn(ws ...model.Warning) {
	for _, w := range ws {
		key := w.Ticker + "|" + string(w.Kind)
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.report.Warnings = append(r.report.Warnings, w)
		r.log.WithFields(map[string]interface{}{
			"ticker": w.Ticker,
			"kind":   string(w.Kind),
		}).Warn(w.Message)
	}
}

func (c *Collector) start(p *model.Portfolio, trigger model.Trigger) *run {
	return &run{
		report: &Report{
			Trigger:     trigger,
			GeneratedAt: c.Now(),
			Source:      c.Gateway.Name(),
			Portfolio:   p,
			Prices:      make(map[string]model.PriceSeries, p.Len()),
		},
		seen: make(map[string]bool),
		log:  c.Log.WithField("trigger", string(trigger)),
	}
}

// fetch loads history for all portfolio tickers in one batch and keeps only
// portfolio tickers.
func (c *Collector) fetch(ctx context.Context, r *run, period model.Period) error {
	tickers := r.report.Portfolio.Tickers()
	history, err := c.Gateway.FetchHistory(ctx, tickers, period)
	if err != nil {
		if !errors.Is(err, model.ErrDataUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrDataUnavailable, err)
		}
		return fmt.Errorf("fetch history from %s: %w", c.Gateway.Name(), err)
	}
	for _, t := range tickers {
		series, ok := history[t]
		if !ok || series.Len() == 0 {
			r.warn(model.Warning{Ticker: t, Kind: model.WarnDataUnavailable, Message: "gateway returned no prices"})
			continue
		}
		series.Ticker = t
		r.report.Prices[t] = series
	}
	return nil
}

// Analyze runs a full refresh: prices, TSI per holding, aggregate value,
// stop-loss alerts and the official-reference comparison. Only a failure of
// the whole gateway batch returns an error; per-ticker problems become
// warnings.
func (c *Collector) Analyze(ctx context.Context, p *model.Portfolio) (*Report, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("analyze: %w", model.ErrValidation)
	}
	r := c.start(p, model.TriggerRefresh)
	if err := c.fetch(ctx, r, c.Options.Period); err != nil {
		return nil, err
	}
	report := r.report

	report.TSI = make(map[string]model.TsiSeries, len(report.Prices))
	for _, t := range p.Tickers() {
		series, ok := report.Prices[t]
		if !ok {
			continue
		}
		tsi, err := calculator.CalculateTSI(series, c.Options.LongWindow, c.Options.ShortWindow)
		if err != nil {
			r.warn(model.WarningFromError(t, err))
			continue
		}
		report.TSI[t] = tsi
	}

	val := valuation.Value(report.Prices, p.Investments())
	report.Value = val.Series
	report.Contributions = val.Contributions
	r.warn(val.Warnings...)

	c.evaluateStopLoss(ctx, r)
	report.Comparison = Compare(p.Tickers(), report.TSI, c.Options.Reference)

	r.log.WithFields(map[string]interface{}{
		"tickers":  p.Len(),
		"priced":   len(report.Prices),
		"alerts":   len(report.Alerts),
		"warnings": len(report.Warnings),
	}).Info("analysis completed")
	return report, nil
}

// Check only evaluates stop-losses, on a short history window.
func (c *Collector) Check(ctx context.Context, p *model.Portfolio) (*Report, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("check: %w", model.ErrValidation)
	}
	r := c.start(p, model.TriggerCheck)
	if err := c.fetch(ctx, r, model.Period1Month); err != nil {
		return nil, err
	}
	c.evaluateStopLoss(ctx, r)
	r.log.WithField("alerts", len(r.report.Alerts)).Info("stop-loss check completed")
	return r.report, nil
}

func (c *Collector) evaluateStopLoss(ctx context.Context, r *run) {
	order := r.report.Portfolio.Tickers()
	current, previous, warnings := stoploss.PricesFromSeries(order, r.report.Prices)
	r.warn(warnings...)

	if c.Options.LiveQuotes {
		quotes, err := c.Gateway.FetchCurrent(ctx, order)
		if err != nil {
			r.log.WithError(err).Warn("live quotes unavailable, using last closes")
		} else {
			overlayQuotes(r.report.Prices, quotes, current, previous)
		}
	}

	// Unpriced tickers were already reported above.
	priced := make([]string, 0, len(current))
	for _, t := range order {
		if _, ok := current[t]; ok {
			priced = append(priced, t)
		}
	}
	alerts, warnings := stoploss.Evaluate(priced, current, previous, r.report.Portfolio.StopLossLimits())
	r.warn(warnings...)
	r.report.Alerts = alerts
}

// overlayQuotes applies live quotes to tickers that already have two closes.
// Days are compared on the exchange calendar: a quote from the last bar's day
// replaces that bar, a quote from a later day is measured against the last
// close, and an older or undated quote is ignored.
func overlayQuotes(prices map[string]model.PriceSeries, quotes map[string]model.Quote, current, previous map[string]float64) {
	for t, q := range quotes {
		if _, priced := current[t]; !priced || q.Price <= 0 || q.Time.IsZero() {
			continue
		}
		last, _ := prices[t].Last()
		switch quoteDay := model.Day(q.Time); {
		case quoteDay.Before(last.Date):
			continue
		case quoteDay.After(last.Date):
			previous[t] = last.Price
		}
		current[t] = q.Price
	}
}

// Compare builds the computed-vs-official table in portfolio order.
func Compare(order []string, tsi map[string]model.TsiSeries, ref model.OfficialReference) []model.Comparison {
	rows := make([]model.Comparison, 0, len(order))
	for _, t := range order {
		row := model.Comparison{Ticker: t}
		if series, ok := tsi[t]; ok {
			if latest, ok := series.Latest(); ok {
				row.Computed = latest
			}
		}
		if v, ok := ref[t]; ok {
			row.Official, row.HasOfficial = v, true
		}
		rows = append(rows, row)
	}
	return rows
}
