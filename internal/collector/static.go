package collector

import (
	"context"

	"TSIWatch/internal/model"
)

// StaticGateway serves fixed data. It backs offline runs and tests.
type StaticGateway struct {
	History map[string]model.PriceSeries
	Current map[string]model.Quote
	Err     error

	HistoryCalls int
}

func (s *StaticGateway) Name() string { return "static" }

func (s *StaticGateway) FetchHistory(_ context.Context, tickers []string, _ model.Period) (map[string]model.PriceSeries, error) {
	s.HistoryCalls++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[string]model.PriceSeries, len(tickers))
	for _, t := range tickers {
		if series, ok := s.History[t]; ok && series.Len() > 0 {
			out[t] = series
		}
	}
	return out, nil
}

func (s *StaticGateway) FetchCurrent(_ context.Context, tickers []string) (map[string]model.Quote, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[string]model.Quote, len(tickers))
	for _, t := range tickers {
		if q, ok := s.Current[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}
