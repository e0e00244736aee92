package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/logger"
	"TSIWatch/internal/model"
)

// SQLiteRecorder persists the run journal to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logger.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets external readers query while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.WithField("component", "recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			run_trigger TEXT NOT NULL,
			source      TEXT,
			holdings    INTEGER,
			invested    REAL,
			value       REAL,
			value_date  INTEGER,
			alerts      INTEGER,
			warnings    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON analysis_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS stoploss_alerts (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         INTEGER NOT NULL REFERENCES analysis_runs(id),
			ticker         TEXT NOT NULL,
			current_price  REAL,
			previous_price REAL,
			percent_drop   REAL,
			stop_limit     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ticker ON stoploss_alerts(ticker)`,

		`CREATE TABLE IF NOT EXISTS tsi_snapshots (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    INTEGER NOT NULL REFERENCES analysis_runs(id),
			ticker    TEXT NOT NULL,
			date      INTEGER,
			tsi       REAL,
			official  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tsi_ticker ON tsi_snapshots(ticker)`,

		`CREATE TABLE IF NOT EXISTS membership_changes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			change_type TEXT NOT NULL,
			ticker     TEXT NOT NULL,
			name       TEXT,
			investment REAL,
			stop_loss  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_membership_ts ON membership_changes(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// nullable maps NaN to SQL NULL.
func nullable(v float64, ok bool) sql.NullFloat64 {
	if !ok || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// RecordRun stores the run header together with its alerts and the latest TSI
// per holding, in one transaction.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, rep *collector.Report) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	latest, hasValue := rep.Latest()
	var valueDate sql.NullInt64
	if hasValue {
		valueDate = sql.NullInt64{Int64: latest.Date.Unix(), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO analysis_runs
		(timestamp, run_trigger, source, holdings, invested, value, value_date, alerts, warnings)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rep.GeneratedAt.Unix(), string(rep.Trigger), rep.Source, rep.Portfolio.Len(),
		rep.Portfolio.TotalInvestment(), nullable(latest.Value, hasValue), valueDate,
		len(rep.Alerts), len(rep.Warnings),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, a := range rep.Alerts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stoploss_alerts
			(run_id, ticker, current_price, previous_price, percent_drop, stop_limit)
			VALUES (?,?,?,?,?,?)`,
			runID, a.Ticker, a.CurrentPrice, a.PreviousPrice, a.PercentDrop, a.Limit,
		); err != nil {
			return 0, fmt.Errorf("insert alert %s: %w", a.Ticker, err)
		}
	}

	for _, c := range rep.Comparison {
		var date sql.NullInt64
		if c.Computed.Defined {
			date = sql.NullInt64{Int64: c.Computed.Date.Unix(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tsi_snapshots
			(run_id, ticker, date, tsi, official) VALUES (?,?,?,?,?)`,
			runID, c.Ticker, date,
			nullable(c.Computed.Value, c.Computed.Defined),
			nullable(c.Official, c.HasOfficial),
		); err != nil {
			return 0, fmt.Errorf("insert tsi %s: %w", c.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

func (r *SQLiteRecorder) RecordMembershipChange(ctx context.Context, c model.MembershipChange) error {
	if c.Empty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	insert := func(kind string, entries []model.PortfolioEntry) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `INSERT INTO membership_changes
				(timestamp, change_type, ticker, name, investment, stop_loss)
				VALUES (?,?,?,?,?,?)`,
				c.At.Unix(), kind, e.Ticker, e.Name, e.Investment, e.StopLoss,
			); err != nil {
				return fmt.Errorf("insert %s %s: %w", kind, e.Ticker, err)
			}
		}
		return nil
	}
	if err := insert("ADDED", c.Added); err != nil {
		return err
	}
	if err := insert("REMOVED", c.Removed); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentRuns returns the latest runs, newest first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, timestamp, run_trigger, source, holdings,
		invested, value, alerts, warnings
		FROM analysis_runs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s       RunSummary
			ts      int64
			trigger string
			source  sql.NullString
			value   sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &ts, &trigger, &source, &s.Holdings,
			&s.Invested, &value, &s.Alerts, &s.Warnings); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.At = time.Unix(ts, 0).UTC()
		s.Trigger = model.Trigger(trigger)
		s.Source = source.String
		s.Value, s.HasValue = value.Float64, value.Valid
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
