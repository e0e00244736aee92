// Package portfolio turns external portfolio descriptions (CSV uploads, scraped
// pages, LLM answers, static config) into a validated model.Portfolio, and
// compares portfolio memberships.
package portfolio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"TSIWatch/internal/model"
)

// ValidationError describes one problem with portfolio input. Row is 1-based;
// 0 means the problem is not tied to a data row (missing column, empty input).
type ValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return model.ErrValidation }

// Row is one raw portfolio line before validation.
type Row struct {
	Ticker     string
	Name       string
	Investment string
	StopLoss   string
}

// NormalizeTicker trims whitespace and upper-cases a ticker.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Build parses and validates raw rows. All problems are reported together; the
// returned error matches model.ErrValidation.
func Build(rows []Row) (*model.Portfolio, error) {
	entries := make([]model.PortfolioEntry, 0, len(rows))
	var errs []error
	for i, r := range rows {
		e := model.PortfolioEntry{Ticker: r.Ticker, Name: strings.TrimSpace(r.Name)}
		inv, err := ParseNumber(r.Investment)
		if err != nil {
			errs = append(errs, &ValidationError{Row: i + 1, Field: "Investment", Reason: err.Error()})
		}
		sl, err := ParseNumber(r.StopLoss)
		if err != nil {
			errs = append(errs, &ValidationError{Row: i + 1, Field: "StopLoss", Reason: err.Error()})
		}
		e.Investment, e.StopLoss = inv, sl
		entries = append(entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return Validate(entries)
}

// Validate normalizes tickers and checks every entry. Investment must be
// positive, stop-loss within [0,100] and tickers unique and non-empty.
func Validate(entries []model.PortfolioEntry) (*model.Portfolio, error) {
	if len(entries) == 0 {
		return nil, &ValidationError{Field: "portfolio", Reason: "no holdings"}
	}
	var errs []error
	seen := make(map[string]int, len(entries))
	p := &model.Portfolio{}
	for i, e := range entries {
		row := i + 1
		e.Ticker = NormalizeTicker(e.Ticker)
		if e.Ticker == "" {
			errs = append(errs, &ValidationError{Row: row, Field: "Ticker", Reason: "empty ticker"})
		} else if first, dup := seen[e.Ticker]; dup {
			errs = append(errs, &ValidationError{Row: row, Field: "Ticker",
				Reason: fmt.Sprintf("duplicate of row %d (%s)", first, e.Ticker)})
		} else {
			seen[e.Ticker] = row
		}
		if e.Investment <= 0 {
			errs = append(errs, &ValidationError{Row: row, Field: "Investment",
				Reason: fmt.Sprintf("must be positive, got %v", e.Investment)})
		}
		if e.StopLoss < 0 || e.StopLoss > 100 {
			errs = append(errs, &ValidationError{Row: row, Field: "StopLoss",
				Reason: fmt.Sprintf("must be within 0..100, got %v", e.StopLoss)})
		}
		p.Put(e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

// ParseNumber reads amounts and percents as users type them: "1,500.50",
// "1.500,50", "$1500", "7.5 %".
func ParseNumber(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimSuffix(clean, "%")
	clean = strings.TrimLeft(clean, "$€ ")
	clean = strings.ReplaceAll(strings.TrimSpace(clean), " ", "")
	if clean == "" {
		return 0, errors.New("empty value")
	}

	lastComma := strings.LastIndex(clean, ",")
	lastDot := strings.LastIndex(clean, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		// 1.500,50
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		// 1,500.50
		clean = strings.ReplaceAll(clean, ",", "")
	case lastComma >= 0 && strings.Count(clean, ",") == 1 && len(clean)-lastComma-1 != 3:
		// 7,5
		clean = strings.Replace(clean, ",", ".", 1)
	default:
		clean = strings.ReplaceAll(clean, ",", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return d.InexactFloat64(), nil
}
