package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TSIWatch/internal/model"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func series(ticker string, prices ...float64) model.PriceSeries {
	points := make([]model.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = model.PricePoint{Date: day(i + 1), Price: p}
	}
	return model.NewPriceSeries(ticker, points)
}

func fastClient(c *httpClient) {
	c.initialDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
}

const sparkBody = `{"spark":{"result":[
 {"symbol":"AAPL","response":[{"meta":{"symbol":"AAPL","gmtoffset":-18000,"regularMarketPrice":190.5,"regularMarketTime":1709758800},
  "timestamp":[1709303400,1709562600,1709649000],
  "indicators":{"quote":[{"close":[180.0,null,185.0]}]}}]},
 {"symbol":"BRK-B","response":[{"meta":{"symbol":"BRK-B","gmtoffset":-18000,"regularMarketPrice":0},
  "timestamp":[1709303400,1709562600],
  "indicators":{"quote":[{"close":[400.0,404.0]}]}}]}
],"error":null}}`

func TestYahooGateway(t *testing.T) {
	var gotSymbols string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/spark", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		gotSymbols = r.URL.Query().Get("symbols")
		fmt.Fprint(w, sparkBody)
	}))
	defer srv.Close()

	g := NewYahooGateway("", time.Second, 100, nil)
	g.BaseURL = srv.URL

	t.Run("history", func(t *testing.T) {
		history, err := g.FetchHistory(context.Background(), []string{"AAPL", "BRK.B", "MISSING"}, model.Period1Year)
		require.NoError(t, err)
		assert.Equal(t, "AAPL,BRK-B,MISSING", gotSymbols)

		require.Contains(t, history, "AAPL")
		assert.Equal(t, []float64{180, 185}, history["AAPL"].Prices(), "null closes are dropped")
		first, _ := history["AAPL"].First()
		assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), first.Date)

		require.Contains(t, history, "BRK.B", "results are keyed by portfolio ticker")
		assert.Equal(t, "BRK.B", history["BRK.B"].Ticker)
		assert.NotContains(t, history, "MISSING")
	})

	t.Run("current", func(t *testing.T) {
		quotes, err := g.FetchCurrent(context.Background(), []string{"AAPL", "BRK.B"})
		require.NoError(t, err)
		assert.Equal(t, 190.5, quotes["AAPL"].Price)
		assert.Equal(t, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC), model.Day(quotes["AAPL"].Time),
			"quote time is on the exchange calendar")
		assert.Equal(t, model.Quote{Price: 404, Time: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)}, quotes["BRK.B"],
			"falls back to the last close")
	})

	t.Run("tickers sharing a symbol", func(t *testing.T) {
		history, err := g.FetchHistory(context.Background(), []string{"BRK.B", "BRK-B"}, model.Period1Year)
		require.NoError(t, err)
		assert.Equal(t, "BRK-B", gotSymbols, "the symbol is requested once")
		require.Contains(t, history, "BRK.B")
		require.Contains(t, history, "BRK-B")
		assert.Equal(t, "BRK-B", history["BRK-B"].Ticker)
		assert.Equal(t, history["BRK.B"].Prices(), history["BRK-B"].Prices())
	})
}

func TestYahooGatewayBatching(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		symbols := strings.Split(r.URL.Query().Get("symbols"), ",")
		assert.LessOrEqual(t, len(symbols), yahooBatchSize)
		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"spark":{"result":[]}}`)
	}))
	defer srv.Close()

	g := NewYahooGateway("", time.Second, 100, nil)
	g.BaseURL = srv.URL

	tickers := make([]string, 45)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("T%02d", i)
	}
	history, err := g.FetchHistory(context.Background(), tickers, model.Period1Month)
	require.NoError(t, err, "one failed batch out of three is not a whole-batch failure")
	assert.Empty(t, history)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestYahooGatewayAllBatchesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewYahooGateway("", time.Second, 100, nil)
	g.BaseURL = srv.URL

	_, err := g.FetchHistory(context.Background(), []string{"AAPL"}, model.Period1Year)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestHTTPClientRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		wantErr   bool
		wantCalls int32
	}{
		{name: "recovers after 5xx", failures: 2, status: http.StatusInternalServerError, wantCalls: 3},
		{name: "recovers after 429", failures: 1, status: http.StatusTooManyRequests, wantCalls: 2},
		{name: "gives up after max retries", failures: 10, status: http.StatusBadGateway, wantErr: true, wantCalls: 4},
		{name: "no retry on 4xx", failures: 10, status: http.StatusForbidden, wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				fmt.Fprint(w, `{"ok":true}`)
			}))
			defer srv.Close()

			c := newHTTPClient("", time.Second, 1000, nil)
			fastClient(c)
			var out struct {
				OK bool `json:"ok"`
			}
			err := c.getJSON(context.Background(), srv.URL, nil, &out)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.True(t, out.OK)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestHTTPClientHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newHTTPClient("", time.Second, 1000, nil)
	c.initialDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.getJSON(ctx, srv.URL, nil, &struct{}{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRESTGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/bars/daily":
			assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
			assert.Equal(t, "6mo", r.URL.Query().Get("range"))
			fmt.Fprint(w, `{"AAPL":[{"timestamp":1709337600,"close":181},{"timestamp":1709251200,"close":180}],
				"MSFT":[],"EXTRA":[{"timestamp":1709251200,"close":1}]}`)
		case "/api/v1/quotes":
			fmt.Fprint(w, `{"AAPL":{"price":182.5,"timestamp":1709337600},"MSFT":{"price":0},"EXTRA":{"price":3},
				"GOOG":{"price":140}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewRESTGateway(srv.URL+"/", "secret", "", time.Second, 100, nil)

	history, err := g.FetchHistory(context.Background(), []string{"AAPL", "MSFT"}, model.Period6Months)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []float64{180, 181}, history["AAPL"].Prices(), "bars are sorted chronologically")

	quotes, err := g.FetchCurrent(context.Background(), []string{"AAPL", "MSFT", "GOOG"})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Quote{
		"AAPL": {Price: 182.5, Time: day(2)},
		"GOOG": {Price: 140},
	}, quotes)
}

func TestRESTGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewRESTGateway(srv.URL, "", "", time.Second, 100, nil)
	_, err := g.FetchHistory(context.Background(), []string{"AAPL"}, model.Period1Year)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func testPortfolio() *model.Portfolio {
	return model.NewPortfolio(
		model.PortfolioEntry{Ticker: "AAA", Investment: 1000, StopLoss: 5},
		model.PortfolioEntry{Ticker: "BBB", Investment: 2000, StopLoss: 5},
		model.PortfolioEntry{Ticker: "CCC", Investment: 500, StopLoss: 5},
	)
}

func fixedNow(c *Collector, t time.Time) {
	c.Now = func() time.Time { return t }
}

func TestCollectorAnalyzePartialFailure(t *testing.T) {
	gw := &StaticGateway{History: map[string]model.PriceSeries{
		"AAA":   series("AAA", 10, 11, 12, 11, 10.4),
		"BBB":   series("BBB", 20, 20, 20, 20, 20),
		"OTHER": series("OTHER", 1, 2, 3),
	}}
	c := NewCollector(gw, Options{
		LongWindow:  3,
		ShortWindow: 2,
		Reference:   model.OfficialReference{"AAA": 12.5},
	}, nil)
	fixedNow(c, day(10))

	report, err := c.Analyze(context.Background(), testPortfolio())
	require.NoError(t, err)

	assert.Equal(t, model.TriggerRefresh, report.Trigger)
	assert.Equal(t, "static", report.Source)
	assert.Equal(t, day(10), report.GeneratedAt)

	assert.NotContains(t, report.Prices, "OTHER")
	assert.NotContains(t, report.Prices, "CCC")
	assert.Contains(t, report.TSI, "AAA")
	assert.Contains(t, report.TSI, "BBB")

	latest, ok := report.Latest()
	require.True(t, ok)
	assert.InDelta(t, 1000*10.4/10+2000, latest.Value, 1e-9)
	require.Contains(t, report.Contributions, "CCC")
	for _, v := range report.Contributions["CCC"] {
		assert.Zero(t, v.Value)
	}

	// AAA dropped 5.45% on the last day.
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "AAA", report.Alerts[0].Ticker)
	assert.Equal(t, 5.45, report.Alerts[0].PercentDrop)

	require.Len(t, report.Comparison, 3)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, []string{
		report.Comparison[0].Ticker, report.Comparison[1].Ticker, report.Comparison[2].Ticker,
	})
	assert.True(t, report.Comparison[0].HasOfficial)
	assert.True(t, report.Comparison[0].Computed.Defined)
	assert.False(t, report.Comparison[1].Computed.Defined, "constant series has no TSI")
	assert.False(t, report.Comparison[2].HasOfficial)

	require.Len(t, report.Warnings, 1, "warnings are de-duplicated per ticker and kind")
	assert.Equal(t, "CCC", report.Warnings[0].Ticker)
	assert.Equal(t, model.WarnDataUnavailable, report.Warnings[0].Kind)
}

func TestCollectorAnalyzeShortSeries(t *testing.T) {
	gw := &StaticGateway{History: map[string]model.PriceSeries{
		"AAA": series("AAA", 10),
		"BBB": series("BBB", 20, 21),
		"CCC": series("CCC", 5, 5.5),
	}}
	c := NewCollector(gw, Options{}, nil)

	report, err := c.Analyze(context.Background(), testPortfolio())
	require.NoError(t, err)
	assert.NotContains(t, report.TSI, "AAA")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, model.WarnInsufficientData, report.Warnings[0].Kind)
}

func TestCollectorWholeBatchFailure(t *testing.T) {
	gw := &StaticGateway{Err: errors.New("connection refused")}
	c := NewCollector(gw, Options{}, nil)

	_, err := c.Analyze(context.Background(), testPortfolio())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)

	_, err = c.Check(context.Background(), testPortfolio())
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestCollectorEmptyPortfolio(t *testing.T) {
	gw := &StaticGateway{}
	c := NewCollector(gw, Options{}, nil)
	_, err := c.Analyze(context.Background(), model.NewPortfolio())
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Zero(t, gw.HistoryCalls)
}

func TestCollectorCheckLiveQuotes(t *testing.T) {
	history := map[string]model.PriceSeries{
		"AAA": series("AAA", 100, 100, 100), // last bar on day 3
		"BBB": series("BBB", 50, 50),        // last bar on day 2
		"CCC": series("CCC", 10, 10),
	}
	quotes := func(at time.Time) map[string]model.Quote {
		return map[string]model.Quote{
			"AAA": {Price: 90, Time: at},
			"BBB": {Price: 45, Time: at},
			"CCC": {Price: 9.9, Time: at},
		}
	}
	tests := []struct {
		name       string
		live       bool
		quoteAt    time.Time
		wantAlerts []string
	}{
		{name: "closes only", live: false, quoteAt: day(3), wantAlerts: nil},
		{name: "quote replaces the last bar's day", live: true, quoteAt: day(3).Add(15 * time.Hour), wantAlerts: []string{"AAA", "BBB"}},
		{name: "quote after last close", live: true, quoteAt: day(4).Add(15 * time.Hour), wantAlerts: []string{"AAA", "BBB"}},
		{name: "quote older than the last bar", live: true, quoteAt: day(1).Add(15 * time.Hour), wantAlerts: nil},
		{name: "undated quote", live: true, quoteAt: time.Time{}, wantAlerts: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &StaticGateway{History: history, Current: quotes(tt.quoteAt)}
			c := NewCollector(gw, Options{LiveQuotes: tt.live}, nil)
			fixedNow(c, day(4).Add(15*time.Hour))

			report, err := c.Check(context.Background(), testPortfolio())
			require.NoError(t, err)
			assert.Equal(t, model.TriggerCheck, report.Trigger)
			assert.Nil(t, report.TSI)

			var got []string
			for _, a := range report.Alerts {
				got = append(got, a.Ticker)
				assert.Equal(t, 10.0, a.PercentDrop)
			}
			assert.Equal(t, tt.wantAlerts, got)
		})
	}
}

// Outside trading hours the quote is the last session's close. The drop of
// that session must still be reported, whatever the host's clock says.
func TestCollectorCheckQuoteFromLastSession(t *testing.T) {
	friday := time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)
	ny := time.FixedZone("EST", -5*3600)
	gw := &StaticGateway{
		History: map[string]model.PriceSeries{
			"AAA": model.NewPriceSeries("AAA", []model.PricePoint{
				{Date: friday.AddDate(0, 0, -1), Price: 100},
				{Date: friday, Price: 90},
			}),
		},
		Current: map[string]model.Quote{
			"AAA": {Price: 90, Time: time.Date(2024, time.March, 8, 16, 0, 0, 0, ny)},
		},
	}
	p := model.NewPortfolio(model.PortfolioEntry{Ticker: "AAA", Investment: 1000, StopLoss: 5})

	for _, now := range []time.Time{
		time.Date(2024, time.March, 9, 10, 0, 0, 0, time.UTC),                      // Saturday
		time.Date(2024, time.March, 11, 8, 0, 0, 0, ny),                            // Monday before the open
		time.Date(2024, time.March, 9, 7, 30, 0, 0, time.FixedZone("KST", 9*3600)), // host ahead of New York
	} {
		c := NewCollector(gw, Options{LiveQuotes: true}, nil)
		fixedNow(c, now)
		report, err := c.Check(context.Background(), p)
		require.NoError(t, err)
		require.Len(t, report.Alerts, 1, "now=%s", now)
		assert.Equal(t, model.StopLossAlert{
			Ticker: "AAA", CurrentPrice: 90, PreviousPrice: 100, PercentDrop: 10, Limit: 5,
		}, report.Alerts[0])
	}
}

func TestCompare(t *testing.T) {
	tsi := map[string]model.TsiSeries{
		"AAA": {Ticker: "AAA", Points: []model.TsiPoint{{Date: day(2), Value: 42, Defined: true}}},
	}
	rows := Compare([]string{"BBB", "AAA"}, tsi, model.OfficialReference{"AAA": 40, "ZZZ": 1})
	require.Len(t, rows, 2)
	assert.Equal(t, "BBB", rows[0].Ticker)
	assert.False(t, rows[0].Computed.Defined)

	diff, ok := rows[1].Difference()
	require.True(t, ok)
	assert.Equal(t, 2.0, diff)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk(nil, 20))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, chunk([]string{"a", "b"}, 2))
}
