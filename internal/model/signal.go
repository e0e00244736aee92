package model

import "time"

// StopLossAlert is raised when a holding's daily decline reaches its limit.
type StopLossAlert struct {
	Ticker        string
	CurrentPrice  float64
	PreviousPrice float64
	PercentDrop   float64 // rounded to 2 decimals
	Limit         float64
}

// Trigger says which action started an analysis run.
type Trigger string

const (
	TriggerRefresh    Trigger = "REFRESH"
	TriggerCheck      Trigger = "CHECK"
	TriggerMembership Trigger = "MEMBERSHIP"
)

// MembershipChange records added and removed holdings between two portfolios.
type MembershipChange struct {
	Added   []PortfolioEntry
	Removed []PortfolioEntry
	At      time.Time
}

// Empty reports whether nothing changed.
func (c MembershipChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}
