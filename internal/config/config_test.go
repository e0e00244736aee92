package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TSIWatch/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "yahoo", cfg.DataSource.Provider)
	assert.Equal(t, model.Period1Year, cfg.DataSource.Period)
	assert.Equal(t, 30*time.Second, cfg.DataSource.Timeout)
	assert.Equal(t, "csv", cfg.Portfolio.Source)
	assert.Equal(t, "data/portfolio.csv", cfg.Portfolio.Path)
	assert.Equal(t, 25, cfg.Indicator.LongWindow)
	assert.Equal(t, 13, cfg.Indicator.ShortWindow)
	assert.Equal(t, 10.0, cfg.Portfolio.DefaultStopLoss)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateTelegram())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: file-token
  chat_id: "42"
data_source:
  provider: rest
  base_url: http://prices.local
  period: 6mo
  timeout: 5s
portfolio:
  source: static
  entries:
    - ticker: AAPL
      investment: 1000
      stop_loss: 8
indicator:
  long_window: 20
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, model.Period6Months, cfg.DataSource.Period)
	assert.Equal(t, 5*time.Second, cfg.DataSource.Timeout)
	assert.Equal(t, 20, cfg.Indicator.LongWindow)
	assert.Equal(t, 13, cfg.Indicator.ShortWindow)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Portfolio.Entries, 1)
	assert.Equal(t, model.PortfolioEntry{Ticker: "AAPL", Investment: 1000, StopLoss: 8}, cfg.Portfolio.Entries[0])
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateTelegram())
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "telegram: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.DataSource.Provider = "bloomberg" }},
		{"rest without url", func(c *Config) { c.DataSource.Provider = "rest" }},
		{"unknown source", func(c *Config) { c.Portfolio.Source = "fax" }},
		{"scrape without url", func(c *Config) { c.Portfolio.Source = "scrape" }},
		{"llm without key", func(c *Config) { c.Portfolio.Source = "llm" }},
		{"static without entries", func(c *Config) { c.Portfolio.Source = "static" }},
		{"stop-loss out of range", func(c *Config) { c.Portfolio.DefaultStopLoss = 150 }},
		{"bad window", func(c *Config) { c.Indicator.ShortWindow = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
