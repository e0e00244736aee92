package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
)

func newTestNotifier(srv *httptest.Server) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", nil)
	n.APIBase = srv.URL
	n.retryDelay = time.Millisecond
	n.pollTimeout = 0
	return n
}

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv).Send(context.Background(), "hello"))
	assert.Equal(t, map[string]string{"chat_id": "42", "text": "hello", "parse_mode": "HTML"}, got)
}

func TestSendWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   bool
		wantCalls int32
	}{
		{name: "first attempt", failures: 0, wantCalls: 1},
		{name: "recovers", failures: 2, wantCalls: 3},
		{name: "exhausted", failures: 10, wantErr: true, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) <= tt.failures {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				fmt.Fprint(w, `{"ok":true}`)
			}))
			defer srv.Close()

			err := newTestNotifier(srv).SendWithRetry(context.Background(), "msg", 2)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, parts)

	parts = splitMessage("0123456789abcdef\nxy", 8)
	assert.Equal(t, []string{"01234567", "89abcdef", "\nxy"}, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 8)
	}
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	parts := splitMessage("aéé", 4)
	assert.Equal(t, []string{"aé", "é"}, parts)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p), "%q", p)
	}
}

func TestSplitMessageReopensPre(t *testing.T) {
	text := "head\n<pre>r1\nr2\nr3\n</pre>\ntail"
	parts := splitMessage(text, 20)
	assert.Equal(t, []string{
		"head\n<pre>r1\n</pre>",
		"<pre>r2\nr3\n</pre>\n",
		"tail",
	}, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 20)
		assert.Equal(t, strings.Count(p, "<pre>"), strings.Count(p, "</pre>"), "%q", p)
	}
}

func TestSendWithRetryResendsOnlyFailedPart(t *testing.T) {
	var mu sync.Mutex
	var received []string
	failedOnce := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload["text"][:1])
		if strings.HasPrefix(payload["text"], "y") && !failedOnce {
			failedOnce = true
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	text := strings.Repeat("x", 3000) + "\n" + strings.Repeat("y", 3000)
	require.NoError(t, newTestNotifier(srv).SendWithRetry(context.Background(), text, 2))
	assert.Equal(t, []string{"x", "y", "y"}, received)
}

func TestPollOnce(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			assert.Equal(t, "7", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `{"ok":true,"result":[
				{"update_id":7,"message":{"text":" /check ","chat":{"id":42}}},
				{"update_id":8,"message":{"text":"/refresh","chat":{"id":99}}},
				{"update_id":9}
			]}`)
		case "/botTOKEN/sendMessage":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			mu.Lock()
			sent = append(sent, payload["text"])
			mu.Unlock()
			fmt.Fprint(w, `{"ok":true}`)
		}
	}))
	defer srv.Close()

	var handled []string
	handler := func(_ context.Context, cmd string) string {
		handled = append(handled, cmd)
		return "done " + cmd
	}
	next, err := newTestNotifier(srv).pollOnce(context.Background(), 7, handler)
	require.NoError(t, err)
	assert.Equal(t, 10, next)
	assert.Equal(t, []string{"/check"}, handled, "commands from other chats are ignored")
	assert.Equal(t, []string{"done /check"}, sent)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$1,234.57", formatUSD(1234.567))
	assert.Equal(t, "$0.00", formatUSD(0))
	assert.Equal(t, "+$10.00", signedUSD(10))
	assert.Equal(t, "-$10.00", signedUSD(-10))
}

func testReport() *collector.Report {
	p := model.NewPortfolio(
		model.PortfolioEntry{Ticker: "AAPL", Name: "Apple", Investment: 1000, StopLoss: 10},
		model.PortfolioEntry{Ticker: "MSFT", Investment: 2000, StopLoss: 10},
	)
	at := time.Date(2024, time.March, 5, 22, 30, 0, 0, time.UTC)
	return &collector.Report{
		Trigger:     model.TriggerRefresh,
		GeneratedAt: at,
		Portfolio:   p,
		Value:       model.ValueSeries{{Date: at, Value: 3300}},
		Comparison: []model.Comparison{
			{Ticker: "AAPL", Computed: model.TsiPoint{Value: 25.5, Defined: true}, Official: 20, HasOfficial: true},
			{Ticker: "MSFT"},
		},
		Alerts: []model.StopLossAlert{
			{Ticker: "AAPL", CurrentPrice: 90, PreviousPrice: 100, PercentDrop: 10, Limit: 10},
		},
		Warnings: []model.Warning{{Ticker: "MSFT", Kind: model.WarnInsufficientData, Message: "too short <2"}},
	}
}

func TestFormatReport(t *testing.T) {
	msg := FormatReport(testReport())
	assert.Contains(t, msg, "2024-03-05 22:30")
	assert.Contains(t, msg, "Value: $3,300.00")
	assert.Contains(t, msg, "P/L: +$300.00 (+10.00%)")
	assert.Contains(t, msg, "+25.50")
	assert.Contains(t, msg, "+5.50")
	assert.Contains(t, msg, "n/a")
	assert.Contains(t, msg, "AAPL: -10.00% (limit 10.00%) $100.00 → $90.00")
	assert.Contains(t, msg, "too short &lt;2", "warnings are HTML-escaped")
}

func TestFormatCheck(t *testing.T) {
	r := testReport()
	assert.Contains(t, FormatCheck(r), "Stop-loss triggered")

	r.Alerts, r.Warnings = nil, nil
	assert.True(t, strings.HasPrefix(FormatCheck(r), "✅ No stop-loss triggered (2 holdings"))
}

func TestFormatMembershipChange(t *testing.T) {
	at := time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "🗂 Portfolio unchanged (2024-04-01)", FormatMembershipChange(model.MembershipChange{At: at}))

	msg := FormatMembershipChange(model.MembershipChange{
		Added:   []model.PortfolioEntry{{Ticker: "GOOG", Investment: 1000, StopLoss: 8}},
		Removed: []model.PortfolioEntry{{Ticker: "AAPL", Name: "Apple", Investment: 500, StopLoss: 10}},
		At:      at,
	})
	assert.Contains(t, msg, "➕ Added (1)\n  <b>GOOG</b> | $1,000.00 | stop 8.0%")
	assert.Contains(t, msg, "➖ Removed (1)\n  <b>AAPL</b> Apple | $500.00 | stop 10.0%")
}

func TestFormatPortfolio(t *testing.T) {
	msg := FormatPortfolio(testReport().Portfolio, time.Time{})
	assert.Contains(t, msg, "2 holdings, $3,000.00 invested")
	assert.NotContains(t, msg, "Loaded:")
	assert.Contains(t, msg, "<b>MSFT</b> | $2,000.00")
}
