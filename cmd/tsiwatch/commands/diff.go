package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"TSIWatch/internal/model"
	"TSIWatch/internal/portfolio"
	"TSIWatch/internal/session"
)

var (
	diffOld string
	diffNew string
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show holdings added and removed between two portfolios",
	Long: `Compares two portfolio CSV files. Without --old the portfolio stored in
the session file is used; without --new the configured source is loaded.
The session file is not modified.

Example:
  tsiwatch diff --old portfolio-2024-03.csv --new portfolio-2024-04.csv`,
	RunE: runDiff,
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently journaled runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(diffCmd, historyCmd)
	diffCmd.Flags().StringVar(&diffOld, "old", "", "previous portfolio CSV")
	diffCmd.Flags().StringVar(&diffNew, "new", "", "current portfolio CSV")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs")
}

func runDiff(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	var a *app
	needApp := diffOld == "" || diffNew == ""
	if needApp {
		var err error
		if a, err = loadApp(); err != nil {
			return err
		}
	}

	var old *model.Portfolio
	if diffOld != "" {
		var err error
		if old, err = (&portfolio.CSVSource{Path: diffOld}).Load(ctx); err != nil {
			return fmt.Errorf("load old portfolio: %w", err)
		}
	} else {
		store, err := session.NewStore(a.cfg.SessionFile)
		if err != nil {
			return fmt.Errorf("init session: %w", err)
		}
		if old, err = store.Portfolio(); err != nil {
			return fmt.Errorf("load session portfolio: %w", err)
		}
		if old == nil {
			return fmt.Errorf("no portfolio stored in %s, pass --old", a.cfg.SessionFile)
		}
	}

	var src portfolio.Source = &portfolio.CSVSource{Path: diffNew}
	if diffNew == "" {
		var err error
		if src, err = newSource(ctx, a.cfg); err != nil {
			return err
		}
	}
	next, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load new portfolio: %w", err)
	}

	printChange(cmd.OutOrStdout(), portfolio.Compare(old, next, time.Now()))
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	rec := a.newRecorder()
	defer rec.Close()
	runs, err := rec.RecentRuns(commandContext(cmd), historyLimit)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}
