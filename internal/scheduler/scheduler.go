package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/logger"
	"TSIWatch/internal/model"
	"TSIWatch/internal/notifier"
	"TSIWatch/internal/portfolio"
	"TSIWatch/internal/recorder"
	"TSIWatch/internal/session"
)

const sendRetries = 3

// Scheduler manages all cron tasks and Telegram commands. Runs are serialized.
type Scheduler struct {
	Cron      *cron.Cron
	Source    portfolio.Source
	Collector *collector.Collector
	Session   *session.Store
	Notifier  notifier.Sender
	Recorder  recorder.Recorder
	Log       *logger.Logger
	Ctx       context.Context
	Now       func() time.Time

	mu sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, src portfolio.Source, col *collector.Collector, store *session.Store,
	tn notifier.Sender, rec recorder.Recorder, log *logger.Logger) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Source:    src,
		Collector: col,
		Session:   store,
		Notifier:  tn,
		Recorder:  rec,
		Log:       log.WithField("component", "scheduler"),
		Ctx:       ctx,
		Now:       time.Now,
	}
}

// RegisterAll registers the refresh, stop-loss check and membership tasks.
func (s *Scheduler) RegisterAll(refreshCron, checkCron, membershipCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	if _, err := s.Cron.AddFunc(checkCron, s.checkTask); err != nil {
		return fmt.Errorf("register check task: %w", err)
	}
	if _, err := s.Cron.AddFunc(membershipCron, s.membershipTask); err != nil {
		return fmt.Errorf("register membership task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunRefreshNow executes the refresh task immediately.
func (s *Scheduler) RunRefreshNow() {
	s.refreshTask()
}

// currentPortfolio returns the session portfolio, loading and storing it from
// the source on first use or when the stored one is invalid. Callers hold s.mu.
func (s *Scheduler) currentPortfolio(ctx context.Context) (*model.Portfolio, error) {
	p, err := s.Session.Portfolio()
	if err != nil {
		s.Log.WithError(err).Warn("stored portfolio rejected, reloading from source")
	}
	if p != nil {
		return p, nil
	}
	p, err = s.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load portfolio from %s: %w", s.Source.Name(), err)
	}
	if err := s.Session.SetPortfolio(p, s.Source.Name(), s.Now()); err != nil {
		s.Log.WithError(err).Error("save session")
	}
	return p, nil
}

func (s *Scheduler) refresh(ctx context.Context) (*collector.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.Collector.Analyze(ctx, p)
	if err != nil {
		return nil, err
	}
	s.record(ctx, report)
	// The refresh message lists every alert; later checks must not repeat them today.
	if _, err := s.Session.NewAlerts(report.Alerts, report.GeneratedAt); err != nil {
		s.Log.WithError(err).Error("save session")
	}
	if err := s.Session.MarkRefresh(report.GeneratedAt); err != nil {
		s.Log.WithError(err).Error("save session")
	}
	return report, nil
}

// check runs a stop-loss check and returns the report together with the
// alerts not sent earlier on the same day.
func (s *Scheduler) check(ctx context.Context) (*collector.Report, []model.StopLossAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPortfolio(ctx)
	if err != nil {
		return nil, nil, err
	}
	report, err := s.Collector.Check(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	s.record(ctx, report)
	fresh, err := s.Session.NewAlerts(report.Alerts, report.GeneratedAt)
	if err != nil {
		s.Log.WithError(err).Error("save session")
	}
	if err := s.Session.MarkCheck(report.GeneratedAt); err != nil {
		s.Log.WithError(err).Error("save session")
	}
	return report, fresh, nil
}

// membership reloads the portfolio from its source and diffs it against the
// stored one. first is true when nothing was stored before.
func (s *Scheduler) membership(ctx context.Context) (change model.MembershipChange, next *model.Portfolio, first bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err = s.Source.Load(ctx)
	if err != nil {
		return change, nil, false, fmt.Errorf("load portfolio from %s: %w", s.Source.Name(), err)
	}
	now := s.Now()
	old, stored := s.Session.Portfolio()
	if stored != nil {
		s.Log.WithError(stored).Warn("stored portfolio rejected, treating the reload as a first load")
	}
	change = portfolio.Compare(old, next, now)
	if err := s.Session.SetPortfolio(next, s.Source.Name(), now); err != nil {
		s.Log.WithError(err).Error("save session")
	}
	if old != nil && !change.Empty() {
		if err := s.Recorder.RecordMembershipChange(ctx, change); err != nil {
			s.Log.WithError(err).Error("record membership change")
		}
	}
	s.Log.WithFields(map[string]interface{}{
		"trigger": string(model.TriggerMembership),
		"added":   len(change.Added),
		"removed": len(change.Removed),
	}).Info("portfolio membership reloaded")
	return change, next, old == nil, nil
}

func (s *Scheduler) refreshTask() {
	s.Log.Info("running refresh task")
	report, err := s.refresh(s.Ctx)
	if err != nil {
		s.Log.WithError(err).Error("refresh failed")
		s.trySend(fmt.Sprintf("❌ Refresh failed: %v", err))
		return
	}
	s.trySend(notifier.FormatReport(report))
}

func (s *Scheduler) checkTask() {
	s.Log.Info("running stop-loss check")
	_, fresh, err := s.check(s.Ctx)
	if err != nil {
		s.Log.WithError(err).Error("stop-loss check failed")
		return
	}
	if len(fresh) > 0 {
		s.trySend(notifier.FormatAlerts(fresh))
	}
}

func (s *Scheduler) membershipTask() {
	s.Log.Info("running membership task")
	change, next, first, err := s.membership(s.Ctx)
	if err != nil {
		s.Log.WithError(err).Error("membership reload failed")
		s.trySend(fmt.Sprintf("❌ Portfolio reload failed: %v", err))
		return
	}
	switch {
	case first:
		s.trySend(notifier.FormatPortfolio(next, change.At))
	case !change.Empty():
		s.trySend(notifier.FormatMembershipChange(change))
	}
}

const helpText = `Commands:
/refresh - full TSI and value report
/check - stop-loss check now
/portfolio - current holdings
/diff - reload the portfolio and show changes`

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// Group chats address commands as /check@BotName.
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")

	switch cmd {
	case "/refresh":
		report, err := s.refresh(ctx)
		if err != nil {
			return failure("Refresh", err)
		}
		return notifier.FormatReport(report)
	case "/check":
		report, _, err := s.check(ctx)
		if err != nil {
			return failure("Check", err)
		}
		return notifier.FormatCheck(report)
	case "/portfolio":
		s.mu.Lock()
		p, err := s.currentPortfolio(ctx)
		s.mu.Unlock()
		if err != nil {
			return failure("Portfolio", err)
		}
		return notifier.FormatPortfolio(p, s.Session.Snapshot().LoadedAt)
	case "/diff":
		change, next, first, err := s.membership(ctx)
		if err != nil {
			return failure("Reload", err)
		}
		if first {
			return notifier.FormatPortfolio(next, change.At)
		}
		return notifier.FormatMembershipChange(change)
	default:
		return helpText
	}
}

func failure(action string, err error) string {
	if errors.Is(err, model.ErrValidation) {
		return fmt.Sprintf("❌ %s: portfolio is invalid\n%v", action, err)
	}
	return fmt.Sprintf("❌ %s failed: %v", action, err)
}

func (s *Scheduler) record(ctx context.Context, report *collector.Report) {
	if _, err := s.Recorder.RecordRun(ctx, report); err != nil {
		s.Log.WithError(err).Error("record run")
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, sendRetries); err != nil {
		s.Log.WithError(err).Error("send notification")
	}
}
