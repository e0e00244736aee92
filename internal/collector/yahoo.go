package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"TSIWatch/internal/logger"
	"TSIWatch/internal/model"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com"
	// spark accepts at most 20 symbols per request.
	yahooBatchSize = 20
)

// YahooGateway implements Gateway with the Yahoo Finance spark endpoint, which
// returns daily closes for many symbols in one request.
type YahooGateway struct {
	BaseURL   string
	SymbolMap map[string]string // maps portfolio ticker to Yahoo symbol
	http      *httpClient
	log       *logger.Logger
}

// NewYahooGateway creates a Yahoo gateway with optional proxy support.
func NewYahooGateway(proxyURL string, timeout time.Duration, perSecond float64, log *logger.Logger) *YahooGateway {
	if log == nil {
		log = logger.Nop()
	}
	return &YahooGateway{
		BaseURL: yahooBaseURL,
		SymbolMap: map[string]string{
			"BRK.B": "BRK-B",
			"BF.B":  "BF-B",
		},
		http: newHTTPClient(proxyURL, timeout, perSecond, log),
		log:  log,
	}
}

func (g *YahooGateway) Name() string { return "yahoo" }

func (g *YahooGateway) yahooSymbol(ticker string) string {
	if mapped, ok := g.SymbolMap[ticker]; ok {
		return mapped
	}
	return ticker
}

// yahooSpark is the response structure of the v7 spark API.
type yahooSpark struct {
	Spark struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Meta struct {
					Symbol             string  `json:"symbol"`
					GMTOffset          int     `json:"gmtoffset"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
				} `json:"meta"`
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"response"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"spark"`
}

type sparkResult struct {
	series model.PriceSeries
	quote  model.Quote
}

// fetchSpark requests tickers in batches and keys the results by portfolio
// ticker. A batch that fails is logged and skipped; only when every batch fails
// is an error returned.
func (g *YahooGateway) fetchSpark(ctx context.Context, tickers []string, rng string) (map[string]sparkResult, error) {
	out := make(map[string]sparkResult, len(tickers))
	var failed int
	var lastErr error
	batches := chunk(tickers, yahooBatchSize)
	for _, batch := range batches {
		// Several portfolio tickers may map to one symbol (BRK.B and BRK-B).
		bySymbol := make(map[string][]string, len(batch))
		symbols := make([]string, 0, len(batch))
		for _, t := range batch {
			sym := g.yahooSymbol(t)
			if _, dup := bySymbol[sym]; !dup {
				symbols = append(symbols, sym)
			}
			bySymbol[sym] = append(bySymbol[sym], t)
		}

		q := url.Values{}
		q.Set("symbols", strings.Join(symbols, ","))
		q.Set("range", rng)
		q.Set("interval", "1d")
		endpoint := g.BaseURL + "/v7/finance/spark?" + q.Encode()

		var spark yahooSpark
		header := http.Header{"User-Agent": []string{"Mozilla/5.0"}}
		if err := g.http.getJSON(ctx, endpoint, header, &spark); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("yahoo spark: %w", ctx.Err())
			}
			g.log.WithError(err).WithField("symbols", symbols).Warn("yahoo batch failed")
			failed++
			lastErr = err
			continue
		}
		if spark.Spark.Error != nil {
			g.log.WithField("symbols", symbols).Warnf("yahoo api error: %s", spark.Spark.Error.Description)
			failed++
			lastErr = fmt.Errorf("yahoo api error: %s", spark.Spark.Error.Description)
			continue
		}

		for _, r := range spark.Spark.Result {
			owners := bySymbol[r.Symbol]
			if len(owners) == 0 || len(r.Response) == 0 {
				continue
			}
			resp := r.Response[0]
			zone := time.FixedZone("exchange", resp.Meta.GMTOffset)
			var points []model.PricePoint
			if len(resp.Indicators.Quote) > 0 {
				closes := resp.Indicators.Quote[0].Close
				for i, ts := range resp.Timestamp {
					if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
						continue // null bars (holidays, halts)
					}
					points = append(points, model.PricePoint{
						Date:  time.Unix(ts, 0).In(zone),
						Price: *closes[i],
					})
				}
			}
			quote := model.Quote{Price: resp.Meta.RegularMarketPrice}
			if resp.Meta.RegularMarketTime > 0 {
				quote.Time = time.Unix(resp.Meta.RegularMarketTime, 0).In(zone)
			}
			for _, ticker := range owners {
				out[ticker] = sparkResult{series: model.NewPriceSeries(ticker, points), quote: quote}
			}
		}
	}
	if len(batches) > 0 && failed == len(batches) {
		return nil, fmt.Errorf("yahoo: %w: %w", model.ErrDataUnavailable, lastErr)
	}
	return out, nil
}

func (g *YahooGateway) FetchHistory(ctx context.Context, tickers []string, period model.Period) (map[string]model.PriceSeries, error) {
	if period == "" {
		period = model.Period1Year
	}
	results, err := g.fetchSpark(ctx, tickers, string(period))
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.PriceSeries, len(results))
	for t, r := range results {
		if r.series.Len() > 0 {
			out[t] = r.series
		}
	}
	return out, nil
}

// FetchCurrent returns regularMarketPrice stamped with regularMarketTime. Without
// either, the last close stands in, dated on its trading day.
func (g *YahooGateway) FetchCurrent(ctx context.Context, tickers []string) (map[string]model.Quote, error) {
	results, err := g.fetchSpark(ctx, tickers, "5d")
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Quote, len(results))
	for t, r := range results {
		switch {
		case r.quote.Price > 0 && !r.quote.Time.IsZero():
			out[t] = r.quote
		default:
			if last, ok := r.series.Last(); ok {
				out[t] = model.Quote{Price: last.Price, Time: last.Date}
			}
		}
	}
	return out, nil
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
