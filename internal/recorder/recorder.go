package recorder

import (
	"context"
	"time"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
)

// RunSummary is one journaled analysis run.
type RunSummary struct {
	ID       int64
	At       time.Time
	Trigger  model.Trigger
	Source   string
	Holdings int
	Invested float64
	Value    float64
	HasValue bool
	Alerts   int
	Warnings int
}

// Recorder journals runs for later inspection. Nothing in the analysis path
// reads it back.
type Recorder interface {
	RecordRun(ctx context.Context, r *collector.Report) (int64, error)
	RecordMembershipChange(ctx context.Context, c model.MembershipChange) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}
