package recorder

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
)

func openTestDB(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func report(at time.Time, trigger model.Trigger) *collector.Report {
	return &collector.Report{
		Trigger:     trigger,
		GeneratedAt: at,
		Source:      "static",
		Portfolio: model.NewPortfolio(
			model.PortfolioEntry{Ticker: "AAA", Investment: 1000, StopLoss: 5},
			model.PortfolioEntry{Ticker: "BBB", Investment: 500, StopLoss: 5},
		),
		Value: model.ValueSeries{{Date: at, Value: 1600}},
		Comparison: []model.Comparison{
			{Ticker: "AAA", Computed: model.TsiPoint{Date: at, Value: 12.5, Defined: true}, Official: 11, HasOfficial: true},
			{Ticker: "BBB", Computed: model.TsiPoint{Value: math.NaN()}},
		},
		Alerts:   []model.StopLossAlert{{Ticker: "AAA", CurrentPrice: 90, PreviousPrice: 100, PercentDrop: 10, Limit: 5}},
		Warnings: []model.Warning{{Ticker: "BBB", Kind: model.WarnInsufficientData}},
	}
}

func TestRecordRun(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, time.March, 5, 22, 30, 0, 0, time.UTC)

	id, err := r.RecordRun(ctx, report(at, model.TriggerRefresh))
	require.NoError(t, err)
	assert.Positive(t, id)

	var alerts int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM stoploss_alerts WHERE run_id = ?`, id).Scan(&alerts))
	assert.Equal(t, 1, alerts)

	var defined, undefined int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM tsi_snapshots WHERE run_id = ? AND tsi IS NOT NULL`, id).Scan(&defined))
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM tsi_snapshots WHERE run_id = ? AND tsi IS NULL`, id).Scan(&undefined))
	assert.Equal(t, 1, defined)
	assert.Equal(t, 1, undefined, "undefined TSI is stored as NULL")

	check := report(at.Add(time.Hour), model.TriggerCheck)
	check.Value = nil
	_, err = r.RecordRun(ctx, check)
	require.NoError(t, err)

	runs, err := r.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.TriggerCheck, runs[0].Trigger)
	assert.False(t, runs[0].HasValue)
	assert.Equal(t, model.TriggerRefresh, runs[1].Trigger)
	assert.Equal(t, at, runs[1].At)
	assert.True(t, runs[1].HasValue)
	assert.Equal(t, 1600.0, runs[1].Value)
	assert.Equal(t, 1500.0, runs[1].Invested)
	assert.Equal(t, 2, runs[1].Holdings)
	assert.Equal(t, 1, runs[1].Alerts)
	assert.Equal(t, 1, runs[1].Warnings)
}

func TestRecordMembershipChange(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordMembershipChange(ctx, model.MembershipChange{At: at}))
	require.NoError(t, r.RecordMembershipChange(ctx, model.MembershipChange{
		Added:   []model.PortfolioEntry{{Ticker: "GOOG", Investment: 1000, StopLoss: 8}},
		Removed: []model.PortfolioEntry{{Ticker: "AAPL", Investment: 500, StopLoss: 10}},
		At:      at,
	}))

	rows, err := r.db.Query(`SELECT change_type, ticker FROM membership_changes ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var kind, ticker string
		require.NoError(t, rows.Scan(&kind, &ticker))
		got = append(got, kind+":"+ticker)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"ADDED:GOOG", "REMOVED:AAPL"}, got)
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	r, err := NewSQLiteRecorder(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path, nil)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	id, err := r.RecordRun(context.Background(), report(time.Now(), model.TriggerCheck))
	assert.NoError(t, err)
	assert.Zero(t, id)
	runs, err := r.RecentRuns(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}
