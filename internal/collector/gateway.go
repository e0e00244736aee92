package collector

import (
	"context"

	"TSIWatch/internal/model"
)

// Gateway fetches prices for a batch of tickers. Tickers without data are left
// out of the returned maps; a non-nil error means the whole batch failed.
type Gateway interface {
	FetchHistory(ctx context.Context, tickers []string, period model.Period) (map[string]model.PriceSeries, error)
	FetchCurrent(ctx context.Context, tickers []string) (map[string]model.Quote, error)
	Name() string
}
