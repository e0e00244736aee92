package commands

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/config"
	"TSIWatch/internal/logger"
	"TSIWatch/internal/portfolio"
	"TSIWatch/internal/recorder"
	"TSIWatch/internal/reference"
)

// app holds what every command needs.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &app{cfg: cfg, log: logger.New(cfg.Log)}, nil
}

func newGateway(cfg *config.Config, log *logger.Logger) collector.Gateway {
	ds := cfg.DataSource
	if ds.Provider == "rest" {
		return collector.NewRESTGateway(ds.BaseURL, ds.APIKey, cfg.Proxy, ds.Timeout, ds.RateLimit, log)
	}
	return collector.NewYahooGateway(cfg.Proxy, ds.Timeout, ds.RateLimit, log)
}

func newSource(ctx context.Context, cfg *config.Config) (portfolio.Source, error) {
	pc := cfg.Portfolio
	defaults := portfolio.Defaults{Investment: pc.DefaultInvestment, StopLoss: pc.DefaultStopLoss}
	switch strings.ToLower(pc.Source) {
	case "csv":
		return &portfolio.CSVSource{Path: pc.Path}, nil
	case "scrape":
		return portfolio.NewScrapeSource(pc.URL, pc.TableSelector, defaults), nil
	case "llm":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return portfolio.NewLLMSource(client, cfg.Gemini.Model, defaults), nil
	case "static":
		return &portfolio.StaticSource{Entries: pc.Entries}, nil
	default:
		return nil, fmt.Errorf("unknown portfolio source %q", pc.Source)
	}
}

func (a *app) newCollector(gw collector.Gateway, live bool) (*collector.Collector, error) {
	ref, err := reference.Load(a.cfg.ReferenceFile)
	if err != nil {
		return nil, err
	}
	return collector.NewCollector(gw, collector.Options{
		Period:      a.cfg.DataSource.Period,
		LongWindow:  a.cfg.Indicator.LongWindow,
		ShortWindow: a.cfg.Indicator.ShortWindow,
		Reference:   ref,
		LiveQuotes:  live,
	}, a.log), nil
}

// newRecorder falls back to a no-op journal when SQLite cannot be opened.
func (a *app) newRecorder() recorder.Recorder {
	if a.cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	rec, err := recorder.NewSQLiteRecorder(a.cfg.Database.SQLitePath, a.log)
	if err != nil {
		a.log.WithError(err).Warn("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return rec
}
