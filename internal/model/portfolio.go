package model

// PortfolioEntry is one holding of the tracked portfolio.
type PortfolioEntry struct {
	Ticker     string  `json:"ticker" yaml:"ticker"`
	Name       string  `json:"name,omitempty" yaml:"name,omitempty"`
	Investment float64 `json:"investment" yaml:"investment"`
	StopLoss   float64 `json:"stop_loss" yaml:"stop_loss"` // percent, 0..100
}

// Portfolio is an ordered set of entries keyed by ticker. The zero value is empty
// and ready to use.
type Portfolio struct {
	entries []PortfolioEntry
	index   map[string]int
}

// NewPortfolio builds a portfolio from already validated entries. A later entry
// with the same ticker replaces the earlier one in place.
func NewPortfolio(entries ...PortfolioEntry) *Portfolio {
	p := &Portfolio{}
	for _, e := range entries {
		p.Put(e)
	}
	return p
}

// Put adds or replaces the entry for e.Ticker.
func (p *Portfolio) Put(e PortfolioEntry) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[e.Ticker]; ok {
		p.entries[i] = e
		return
	}
	p.index[e.Ticker] = len(p.entries)
	p.entries = append(p.entries, e)
}

// Get returns the entry for ticker.
func (p *Portfolio) Get(ticker string) (PortfolioEntry, bool) {
	if p == nil {
		return PortfolioEntry{}, false
	}
	i, ok := p.index[ticker]
	if !ok {
		return PortfolioEntry{}, false
	}
	return p.entries[i], true
}

// Len returns the number of holdings.
func (p *Portfolio) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns a copy of the entries in iteration order.
func (p *Portfolio) Entries() []PortfolioEntry {
	if p == nil {
		return nil
	}
	out := make([]PortfolioEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Tickers returns the tickers in iteration order.
func (p *Portfolio) Tickers() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Ticker
	}
	return out
}

// Investments returns ticker -> investment amount.
func (p *Portfolio) Investments() map[string]float64 {
	out := make(map[string]float64, p.Len())
	for _, e := range p.Entries() {
		out[e.Ticker] = e.Investment
	}
	return out
}

// StopLossLimits returns ticker -> stop-loss percent.
func (p *Portfolio) StopLossLimits() map[string]float64 {
	out := make(map[string]float64, p.Len())
	for _, e := range p.Entries() {
		out[e.Ticker] = e.StopLoss
	}
	return out
}

// TotalInvestment sums all investment amounts.
func (p *Portfolio) TotalInvestment() float64 {
	total := 0.0
	for _, e := range p.Entries() {
		total += e.Investment
	}
	return total
}
