package recorder

import (
	"context"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(context.Context, *collector.Report) (int64, error) { return 0, nil }
func (n *NoopRecorder) RecordMembershipChange(context.Context, model.MembershipChange) error {
	return nil
}
func (n *NoopRecorder) RecentRuns(context.Context, int) ([]RunSummary, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                          { return nil }
