package portfolio

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"TSIWatch/internal/model"
)

// CSVSource reads an uploaded portfolio file with the columns Ticker,
// Investment and StopLoss (Name optional). Comma and semicolon separators are
// both accepted.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Load(_ context.Context) (*model.Portfolio, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open portfolio csv: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

const (
	colTicker     = "ticker"
	colName       = "name"
	colInvestment = "investment"
	colStopLoss   = "stoploss"
)

var columnAliases = map[string]string{
	"ticker":     colTicker,
	"symbol":     colTicker,
	"name":       colName,
	"stock":      colName,
	"investment": colInvestment,
	"amount":     colInvestment,
	"stoploss":   colStopLoss,
	"stop":       colStopLoss,
}

func canonicalColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.NewReplacer(" ", "", "-", "", "_", "", "%", "").Replace(h)
	return columnAliases[h]
}

// ParseCSV reads a portfolio table. Missing required columns fail before any
// row is looked at.
func ParseCSV(r io.Reader) (*model.Portfolio, error) {
	br := bufio.NewReader(r)
	sep, err := sniffSeparator(br)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(br)
	cr.Comma = sep
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "header", Reason: "empty file"}
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		if c := canonicalColumn(h); c != "" {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}
	var missing []error
	for _, req := range []struct{ key, label string }{
		{colTicker, "Ticker"}, {colInvestment, "Investment"}, {colStopLoss, "StopLoss"},
	} {
		if _, ok := cols[req.key]; !ok {
			missing = append(missing, &ValidationError{Field: req.label, Reason: "missing column"})
		}
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	field := func(rec []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, Row{
			Ticker:     field(rec, colTicker),
			Name:       field(rec, colName),
			Investment: field(rec, colInvestment),
			StopLoss:   field(rec, colStopLoss),
		})
	}
	return Build(rows)
}

// sniffSeparator picks ';' when the header line has semicolons and no commas.
func sniffSeparator(br *bufio.Reader) (rune, error) {
	line, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, fmt.Errorf("read csv: %w", err)
	}
	first := string(line)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	if strings.Contains(first, ";") && !strings.Contains(first, ",") {
		return ';', nil
	}
	return ',', nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
