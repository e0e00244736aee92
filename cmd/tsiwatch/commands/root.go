package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tsiwatch",
	Short: "TSI USA portfolio tracker",
	Long: `TSIWatch tracks a TSI USA stock portfolio: Trend Strength Indicator per
holding, weighted portfolio value and daily stop-loss alerts.

Examples:
  tsiwatch bot
  tsiwatch analyze --portfolio data/portfolio.csv
  tsiwatch check --live
  tsiwatch diff --old old.csv --new new.csv`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
