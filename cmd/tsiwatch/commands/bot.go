package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"TSIWatch/internal/notifier"
	"TSIWatch/internal/scheduler"
	"TSIWatch/internal/session"
)

var botRunNow bool

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the scheduled Telegram bot",
	Long: `Runs the refresh, stop-loss check and membership jobs on their cron
schedules and answers /refresh, /check, /portfolio and /diff in the
configured Telegram chat. Stops on SIGINT or SIGTERM.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
	botCmd.Flags().BoolVar(&botRunNow, "run-now", os.Getenv("RUN_ON_START") == "true", "run a refresh immediately after start")
}

func runBot(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateTelegram(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.log.Info("TSIWatch starting")

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := newSource(ctx, a.cfg)
	if err != nil {
		return err
	}
	gw := newGateway(a.cfg, a.log)
	a.log.WithField("gateway", gw.Name()).WithField("portfolio", src.Name()).Info("data sources configured")

	col, err := a.newCollector(gw, true)
	if err != nil {
		return err
	}
	store, err := session.NewStore(a.cfg.SessionFile)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	rec := a.newRecorder()
	defer rec.Close()

	tn := notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy, a.log)

	sched := scheduler.NewScheduler(ctx, src, col, store, tn, rec, a.log)
	s := a.cfg.Schedule
	if err := sched.RegisterAll(s.RefreshCron, s.CheckCron, s.MembershipCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	go tn.StartPolling(ctx, sched.HandleCommand)
	a.log.Info("telegram polling started")

	if botRunNow {
		a.log.Info("running refresh on start")
		go sched.RunRefreshNow()
	}

	a.log.Info("TSIWatch is running, press Ctrl+C to stop")
	<-ctx.Done()
	a.log.Info("shutdown signal received, stopping")
	return nil
}

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
