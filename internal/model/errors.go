package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or incomplete portfolio input.
	ErrValidation = errors.New("invalid portfolio")
	// ErrDataUnavailable marks a gateway that returned nothing or failed.
	ErrDataUnavailable = errors.New("price data unavailable")
	// ErrInsufficientData marks a series too short for the computation.
	ErrInsufficientData = errors.New("insufficient price data")
)

// WarningKind classifies a per-ticker problem reported alongside partial results.
type WarningKind string

const (
	WarnValidation       WarningKind = "validation"
	WarnDataUnavailable  WarningKind = "data_unavailable"
	WarnInsufficientData WarningKind = "insufficient_data"
)

// Warning is a non-fatal, per-ticker data-quality problem.
type Warning struct {
	Ticker  string
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	if w.Ticker == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", w.Ticker, w.Kind, w.Message)
}

// WarningFromError classifies err by the sentinel it wraps.
func WarningFromError(ticker string, err error) Warning {
	kind := WarnDataUnavailable
	switch {
	case errors.Is(err, ErrInsufficientData):
		kind = WarnInsufficientData
	case errors.Is(err, ErrValidation):
		kind = WarnValidation
	}
	return Warning{Ticker: ticker, Kind: kind, Message: err.Error()}
}
