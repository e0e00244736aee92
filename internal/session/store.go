// Package session keeps the app-layer state between scheduled runs.
package session

import (
	"fmt"
	"sync"
	"time"

	"TSIWatch/internal/model"
	"TSIWatch/internal/portfolio"
)

// Store guards the session state and persists every change. An empty path
// keeps the state in memory only.
type Store struct {
	mu       sync.Mutex
	state    *State
	filePath string
	now      func() time.Time
}

// NewStore loads or initializes the state at filePath.
func NewStore(filePath string) (*Store, error) {
	state := &State{}
	if filePath != "" {
		var err error
		if state, err = LoadState(filePath); err != nil {
			return nil, err
		}
	}
	return &Store{state: state, filePath: filePath, now: time.Now}, nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.state
	cp.Portfolio = append([]model.PortfolioEntry(nil), s.state.Portfolio...)
	cp.AlertedOn = make(map[string]string, len(s.state.AlertedOn))
	for k, v := range s.state.AlertedOn {
		cp.AlertedOn[k] = v
	}
	return cp
}

// Portfolio returns the last stored portfolio, or nil if none was stored yet.
// Stored entries are validated like any other portfolio input, so a
// hand-edited session file yields an error matching model.ErrValidation.
func (s *Store) Portfolio() (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.Portfolio) == 0 {
		return nil, nil
	}
	p, err := portfolio.Validate(s.state.Portfolio)
	if err != nil {
		return nil, fmt.Errorf("stored portfolio: %w", err)
	}
	return p, nil
}

// SetPortfolio replaces the stored portfolio. Alert history of removed
// tickers is dropped.
func (s *Store) SetPortfolio(p *model.Portfolio, source string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Portfolio = p.Entries()
	s.state.PortfolioSource = source
	s.state.LoadedAt = at
	for t := range s.state.AlertedOn {
		if _, ok := p.Get(t); !ok {
			delete(s.state.AlertedOn, t)
		}
	}
	return s.save()
}

func (s *Store) MarkRefresh(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastRefresh = at
	return s.save()
}

func (s *Store) MarkCheck(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastCheck = at
	return s.save()
}

// NewAlerts returns the alerts not yet sent for the trading day of at and
// remembers them as sent. Order is preserved.
func (s *Store) NewAlerts(alerts []model.StopLossAlert, at time.Time) ([]model.StopLossAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := model.Day(at).Format("2006-01-02")
	if s.state.AlertedOn == nil {
		s.state.AlertedOn = make(map[string]string)
	}
	var fresh []model.StopLossAlert
	for _, a := range alerts {
		if s.state.AlertedOn[a.Ticker] == day {
			continue
		}
		s.state.AlertedOn[a.Ticker] = day
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	return fresh, s.save()
}

func (s *Store) save() error {
	if s.filePath == "" {
		return nil
	}
	return SaveState(s.filePath, s.state, s.now())
}
