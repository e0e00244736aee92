// Package reference loads externally published TSI values for display next to
// the computed ones.
package reference

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"TSIWatch/internal/model"
	"TSIWatch/internal/portfolio"
)

// Load reads a YAML mapping of ticker to official TSI value, e.g.
//
//	AAPL: 42.7
//	MSFT: -3.1
//
// An empty path yields an empty reference.
func Load(path string) (model.OfficialReference, error) {
	ref := model.OfficialReference{}
	if path == "" {
		return ref, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference: %w", err)
	}
	return Parse(data)
}

// Parse decodes a reference document. Tickers are normalized; a ticker listed
// twice after normalization is an error.
func Parse(data []byte) (model.OfficialReference, error) {
	var raw map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse reference: %w", err)
	}
	ref := make(model.OfficialReference, len(raw))
	for k, v := range raw {
		t := portfolio.NormalizeTicker(k)
		if t == "" {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("reference value for %s is not a number", t)
		}
		if _, dup := ref[t]; dup {
			return nil, fmt.Errorf("reference lists %s twice", t)
		}
		ref[t] = v
	}
	return ref, nil
}
