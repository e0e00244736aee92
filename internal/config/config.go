package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"TSIWatch/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider  string        `yaml:"provider"` // yahoo | rest
		BaseURL   string        `yaml:"base_url"`
		APIKey    string        `yaml:"api_key"`
		Period    model.Period  `yaml:"period"`
		RateLimit float64       `yaml:"rate_limit"` // requests per second
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"data_source"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Indicator struct {
		LongWindow  int `yaml:"long_window"`
		ShortWindow int `yaml:"short_window"`
	} `yaml:"indicator"`
	ReferenceFile string `yaml:"reference_file"`
	Schedule      struct {
		RefreshCron    string `yaml:"refresh_cron"`
		CheckCron      string `yaml:"check_cron"`
		MembershipCron string `yaml:"membership_cron"`
	} `yaml:"schedule"`
	SessionFile string `yaml:"session_file"`
	Database    struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
	Log   LogConfig `yaml:"log"`
	Proxy string    `yaml:"proxy"`
}

// PortfolioConfig selects where the portfolio membership comes from.
type PortfolioConfig struct {
	Source            string                 `yaml:"source"` // csv | scrape | llm | static
	Path              string                 `yaml:"path"`
	URL               string                 `yaml:"url"`
	TableSelector     string                 `yaml:"table_selector"`
	DefaultInvestment float64                `yaml:"default_investment"`
	DefaultStopLoss   float64                `yaml:"default_stop_loss"`
	Entries           []model.PortfolioEntry `yaml:"entries"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Load reads config from a YAML file, then a .env file next to the working
// directory, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		c.DataSource.Provider = v
	}
	if v := os.Getenv("DATA_BASE_URL"); v != "" {
		c.DataSource.BaseURL = v
	}
	if v := os.Getenv("DATA_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("PORTFOLIO_SOURCE"); v != "" {
		c.Portfolio.Source = v
	}
	if v := os.Getenv("PORTFOLIO_PATH"); v != "" {
		c.Portfolio.Path = v
	}
	if v := os.Getenv("PORTFOLIO_URL"); v != "" {
		c.Portfolio.URL = v
	}
	if v := os.Getenv("DEFAULT_STOP_LOSS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Portfolio.DefaultStopLoss = f
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("CRON_CHECK"); v != "" {
		c.Schedule.CheckCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.Period == "" {
		c.DataSource.Period = model.Period1Year
	}
	if c.DataSource.RateLimit == 0 {
		c.DataSource.RateLimit = 2
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 30 * time.Second
	}
	if c.Portfolio.Source == "" {
		c.Portfolio.Source = "csv"
	}
	if c.Portfolio.Source == "csv" && c.Portfolio.Path == "" {
		c.Portfolio.Path = "data/portfolio.csv"
	}
	if c.Portfolio.DefaultInvestment == 0 {
		c.Portfolio.DefaultInvestment = 1000
	}
	if c.Portfolio.DefaultStopLoss == 0 {
		c.Portfolio.DefaultStopLoss = 10
	}
	if c.Indicator.LongWindow == 0 {
		c.Indicator.LongWindow = 25
	}
	if c.Indicator.ShortWindow == 0 {
		c.Indicator.ShortWindow = 13
	}
	if c.Schedule.RefreshCron == "" {
		c.Schedule.RefreshCron = "0 30 22 * * 1-5"
	}
	if c.Schedule.CheckCron == "" {
		c.Schedule.CheckCron = "0 0 16-21 * * 1-5"
	}
	if c.Schedule.MembershipCron == "" {
		c.Schedule.MembershipCron = "0 0 9 1 * *"
	}
	if c.SessionFile == "" {
		c.SessionFile = "data/session.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/tsiwatch.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the settings needed to compute anything. Telegram settings
// are checked separately by the bot command.
func (c *Config) Validate() error {
	switch c.DataSource.Provider {
	case "yahoo":
	case "rest":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for the rest provider")
		}
	default:
		return fmt.Errorf("data_source.provider %q is not one of yahoo, rest", c.DataSource.Provider)
	}
	switch strings.ToLower(c.Portfolio.Source) {
	case "csv":
		if c.Portfolio.Path == "" {
			return fmt.Errorf("portfolio.path is required for the csv source")
		}
	case "scrape":
		if c.Portfolio.URL == "" {
			return fmt.Errorf("portfolio.url is required for the scrape source")
		}
	case "llm":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required for the llm source")
		}
	case "static":
		if len(c.Portfolio.Entries) == 0 {
			return fmt.Errorf("portfolio.entries is required for the static source")
		}
	default:
		return fmt.Errorf("portfolio.source %q is not one of csv, scrape, llm, static", c.Portfolio.Source)
	}
	if c.Portfolio.DefaultInvestment <= 0 {
		return fmt.Errorf("portfolio.default_investment must be positive")
	}
	if c.Portfolio.DefaultStopLoss < 0 || c.Portfolio.DefaultStopLoss > 100 {
		return fmt.Errorf("portfolio.default_stop_loss must be within 0..100")
	}
	if c.Indicator.LongWindow <= 0 || c.Indicator.ShortWindow <= 0 {
		return fmt.Errorf("indicator windows must be positive")
	}
	if c.DataSource.RateLimit <= 0 {
		return fmt.Errorf("data_source.rate_limit must be positive")
	}
	return nil
}

// ValidateTelegram checks the settings the bot needs.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	return nil
}
