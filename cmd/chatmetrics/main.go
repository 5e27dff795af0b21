package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/xaenox/chat-metrics/internal/aggregate"
	"github.com/xaenox/chat-metrics/internal/classifier"
	"github.com/xaenox/chat-metrics/internal/notify"
	"github.com/xaenox/chat-metrics/internal/pipeline"
	"github.com/xaenox/chat-metrics/internal/storage"
	"github.com/xaenox/chat-metrics/internal/telemetry"
	"github.com/xaenox/chat-metrics/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const usage = `Usage: chatmetrics <command> [flags]

Commands:
  import     --file PATH | --base64 DATA | --url URL
  analyze    [--limit N] [--skip N] [--conversation ID]
  reanalyze  --conversation ID
  aggregate
  alerts     [--status active|acknowledged|resolved] [--severity critical|urgent|monitor]
  ack        --id ALERT_ID
  resolve    --id ALERT_ID
  status
  run        --file PATH | --base64 DATA | --url URL
  delete     --tickets 1,2,3
  reset      --yes
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	configPath := flags.String("config", "", "path to config file (default ./config.yaml if present)")
	flags.String("driver", "memory", "storage driver: memory, postgres or sqlite")
	flags.String("sqlite-path", "chatmetrics.db", "sqlite database file")
	flags.String("provider", "openai", "tagger: openai or heuristic")
	flags.String("model", "gpt-4o-mini", "completion model")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.Int("batch-size", 10, "conversations per batch")
	flags.Duration("delay", 0, "minimum delay between completion requests")
	flags.Int("workers", 1, "concurrent completion requests")
	flags.Duration("time-budget", 0, "stop scheduling new conversations after this long")
	cmd.flags(flags)
	flags.Parse(os.Args[2:])

	cfg, err := config.LoadConfig(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cmd.needsTagger {
		// the model is never called, so no api key is needed
		cfg.LLM.Provider = "heuristic"
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Listen != "" {
		telemetry.Serve(ctx, cfg.Telemetry.Listen, logger)
	}

	store, err := openStorage(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer store.Close()

	var tagger classifier.Tagger = classifier.NewHeuristicTagger(5)
	if cfg.LLM.Provider == "openai" {
		tagger = classifier.NewGPTTagger(classifier.GPTConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.Model,
			MaxTokens:    cfg.OpenAI.MaxTokens,
			Temperature:  cfg.OpenAI.Temperature,
			MaxAttempts:  cfg.Analyze.MaxAttempts,
			RetryBackoff: cfg.Analyze.RetryBackoff,
			JSONMode:     cfg.OpenAI.JSONMode,
		}, logger)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, logger)
		if err != nil {
			logger.Error("Failed to create telegram notifier, alerts will not be pushed", zap.Error(err))
		} else {
			notifier = tg
		}
	}

	runner := pipeline.NewRunner(store, tagger, notifier, pipeline.Options{
		Analyze: pipeline.AnalyzeOptions{
			BatchSize:  cfg.Analyze.BatchSize,
			Delay:      cfg.Analyze.RateLimitDelay,
			Workers:    cfg.Analyze.Workers,
			TimeBudget: cfg.Analyze.TimeBudget,
		},
		Aggregate: aggregate.Options{
			TopK: cfg.Metrics.TopK,
			Costs: aggregate.Costs{
				Human: decimal.NewFromFloat(cfg.Metrics.HumanCost),
				Bot:   decimal.NewFromFloat(cfg.Metrics.BotCost),
			},
		},
	}, logger)

	result, err := cmd.run(ctx, runner)
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		logger.Error("Command failed", zap.Error(err), zap.String("command", name))
		store.Close()
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "postgres":
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
		return storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		}, logger)
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Path))
		return storage.NewSQLiteStorage(ctx, cfg.Path, logger)
	default:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
