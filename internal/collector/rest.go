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

// RESTGateway implements Gateway against a self-hosted price service that
// serves batched daily bars and quotes as JSON.
type RESTGateway struct {
	BaseURL string
	APIKey  string
	http    *httpClient
}

// NewRESTGateway creates a new gateway with optional proxy support.
func NewRESTGateway(baseURL, apiKey, proxyURL string, timeout time.Duration, perSecond float64, log *logger.Logger) *RESTGateway {
	return &RESTGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		http:    newHTTPClient(proxyURL, timeout, perSecond, log),
	}
}

func (g *RESTGateway) Name() string { return "rest" }

// restBar is the expected JSON shape of one bar.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
}

func (g *RESTGateway) header() http.Header {
	h := http.Header{}
	if g.APIKey != "" {
		h.Set("Authorization", "Bearer "+g.APIKey)
	}
	return h
}

// FetchHistory calls GET /api/v1/bars/daily?symbols=A,B&range=1y, which answers
// {"A": [{"timestamp":..., "close":...}], ...}.
func (g *RESTGateway) FetchHistory(ctx context.Context, tickers []string, period model.Period) (map[string]model.PriceSeries, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(tickers, ","))
	q.Set("range", string(period))
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", g.BaseURL, q.Encode())

	var payload map[string][]restBar
	if err := g.http.getJSON(ctx, endpoint, g.header(), &payload); err != nil {
		return nil, fmt.Errorf("fetch bars: %w: %w", model.ErrDataUnavailable, err)
	}

	wanted := toLookup(tickers)
	out := make(map[string]model.PriceSeries, len(payload))
	for ticker, bars := range payload {
		if !wanted[ticker] || len(bars) == 0 {
			continue
		}
		points := make([]model.PricePoint, 0, len(bars))
		for _, b := range bars {
			if b.Close <= 0 {
				continue
			}
			points = append(points, model.PricePoint{Date: time.Unix(b.Timestamp, 0).UTC(), Price: b.Close})
		}
		if len(points) > 0 {
			out[ticker] = model.NewPriceSeries(ticker, points)
		}
	}
	return out, nil
}

// FetchCurrent calls GET /api/v1/quotes?symbols=A,B, which answers
// {"A": {"price": ..., "timestamp": ...}, ...}. A quote without timestamp is
// returned with a zero Time.
func (g *RESTGateway) FetchCurrent(ctx context.Context, tickers []string) (map[string]model.Quote, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quotes?symbols=%s", g.BaseURL, url.QueryEscape(strings.Join(tickers, ",")))
	var payload map[string]struct {
		Price     float64 `json:"price"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := g.http.getJSON(ctx, endpoint, g.header(), &payload); err != nil {
		return nil, fmt.Errorf("fetch quotes: %w: %w", model.ErrDataUnavailable, err)
	}
	wanted := toLookup(tickers)
	out := make(map[string]model.Quote, len(payload))
	for ticker, q := range payload {
		if !wanted[ticker] || q.Price <= 0 {
			continue
		}
		quote := model.Quote{Price: q.Price}
		if q.Timestamp > 0 {
			quote.Time = time.Unix(q.Timestamp, 0).UTC()
		}
		out[ticker] = quote
	}
	return out, nil
}

func toLookup(tickers []string) map[string]bool {
	m := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		m[t] = true
	}
	return m
}
