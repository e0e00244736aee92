package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
	"TSIWatch/internal/portfolio"
)

var (
	portfolioPath string
	recordRun     bool
	liveQuotes    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute TSI, portfolio value and stop-loss alerts once",
	Long: `Loads the portfolio, fetches price history for all holdings and prints
the aggregate value, the TSI table (with official values when a reference
file is configured), stop-loss alerts and data warnings.

Example:
  tsiwatch analyze --portfolio data/portfolio.csv --record`,
	RunE: runAnalyze,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a stop-loss check once",
	Long: `Compares each holding's latest price with the previous close and prints
the holdings whose drop reached their stop-loss limit.

Example:
  tsiwatch check --live`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(analyzeCmd, checkCmd)
	for _, c := range []*cobra.Command{analyzeCmd, checkCmd} {
		c.Flags().StringVar(&portfolioPath, "portfolio", "", "portfolio CSV (overrides the configured source)")
		c.Flags().BoolVar(&recordRun, "record", false, "journal the run to SQLite")
	}
	checkCmd.Flags().BoolVar(&liveQuotes, "live", false, "use live quotes instead of the last close")
}

// loadPortfolio reads the --portfolio CSV when given, else the configured source.
func loadPortfolio(ctx context.Context, a *app) (*model.Portfolio, error) {
	var src portfolio.Source = &portfolio.CSVSource{Path: portfolioPath}
	if portfolioPath == "" {
		var err error
		if src, err = newSource(ctx, a.cfg); err != nil {
			return nil, err
		}
	}
	p, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load portfolio from %s: %w", src.Name(), err)
	}
	return p, nil
}

type runner func(c *collector.Collector, ctx context.Context, p *model.Portfolio) (*collector.Report, error)

func runOnce(cmd *cobra.Command, live bool, run runner) (*collector.Report, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	ctx := commandContext(cmd)
	p, err := loadPortfolio(ctx, a)
	if err != nil {
		return nil, err
	}
	col, err := a.newCollector(newGateway(a.cfg, a.log), live)
	if err != nil {
		return nil, err
	}
	report, err := run(col, ctx, p)
	if err != nil {
		return nil, err
	}
	if recordRun {
		rec := a.newRecorder()
		defer rec.Close()
		if _, err := rec.RecordRun(ctx, report); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}
	return report, nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	report, err := runOnce(cmd, false, (*collector.Collector).Analyze)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	report, err := runOnce(cmd, liveQuotes, (*collector.Collector).Check)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printAlerts(out, report.Alerts)
	printWarnings(out, report.Warnings)
	return nil
}
