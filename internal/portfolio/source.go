package portfolio

import (
	"context"

	"TSIWatch/internal/model"
)

// Source produces a validated portfolio. Implementations return an error
// wrapping model.ErrValidation for malformed input, and plain errors for
// transport failures; neither is fatal to the caller's process.
type Source interface {
	Name() string
	Load(ctx context.Context) (*model.Portfolio, error)
}

// Defaults fill columns a source cannot provide (scraped pages and LLM answers
// usually only list tickers).
type Defaults struct {
	Investment float64
	StopLoss   float64
}

// StaticSource serves entries declared in the configuration file.
type StaticSource struct {
	Entries []model.PortfolioEntry
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Load(_ context.Context) (*model.Portfolio, error) {
	return Validate(s.Entries)
}
