package portfolio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TSIWatch/internal/model"
)

// ScrapeSource reads the portfolio from an HTML table on a published page.
// Columns are matched by header text like the CSV columns; Investment and
// StopLoss fall back to Defaults when the page does not list them.
type ScrapeSource struct {
	URL           string
	TableSelector string
	Defaults      Defaults
	Client        *http.Client
}

// NewScrapeSource creates a scrape source with a 30s client.
func NewScrapeSource(url, selector string, defaults Defaults) *ScrapeSource {
	return &ScrapeSource{
		URL:           url,
		TableSelector: selector,
		Defaults:      defaults,
		Client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ScrapeSource) Name() string { return "scrape" }

func (s *ScrapeSource) Load(ctx context.Context) (*model.Portfolio, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape portfolio page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scrape portfolio page: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return ParseHTML(resp.Body, s.TableSelector, s.Defaults)
}

// ParseHTML extracts the first table matching selector ("table" when empty).
func ParseHTML(r io.Reader, selector string, defaults Defaults) (*model.Portfolio, error) {
	if selector == "" {
		selector = "table"
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse portfolio page: %w", err)
	}
	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return nil, &ValidationError{Field: "table", Reason: fmt.Sprintf("no element matches %q", selector)}
	}

	cols := make(map[string]int)
	table.Find("tr").First().Find("th,td").Each(func(i int, cell *goquery.Selection) {
		if c := canonicalColumn(cell.Text()); c != "" {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	})
	tickerCol, ok := cols[colTicker]
	if !ok {
		return nil, &ValidationError{Field: "Ticker", Reason: "missing column"}
	}

	var rows []Row
	table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		text := func(key string) string {
			i, ok := cols[key]
			if !ok || i >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		if tickerCol >= cells.Length() || text(colTicker) == "" {
			return
		}
		row := Row{
			Ticker:     text(colTicker),
			Name:       text(colName),
			Investment: text(colInvestment),
			StopLoss:   text(colStopLoss),
		}
		if row.Investment == "" {
			row.Investment = formatDefault(defaults.Investment)
		}
		if row.StopLoss == "" {
			row.StopLoss = formatDefault(defaults.StopLoss)
		}
		rows = append(rows, row)
	})
	return Build(rows)
}

func formatDefault(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
