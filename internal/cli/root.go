package cli

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/autowriter/internal/core/config"
	"github.com/vietddude/autowriter/internal/telemetry/tracer"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "autowriter",
	Short: "Autowriter novel generation service",
	Long: `Autowriter drafts, enriches and finalizes a novel chapter by chapter,
checkpointing after every finalized chapter so an interrupted run resumes where it stopped.`,
	Run: runWriter,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file and installs the logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	level := parseLevel(cfg.Logging.Level)
	if isDebug {
		level = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initTracing installs the tracer provider and returns a flush-and-stop func.
func initTracing(ctx context.Context, cfg *config.AppConfig) func() {
	shutdown, err := tracer.Init(ctx, cfg.Tracing)
	if err != nil {
		slog.Warn("Tracing disabled", "error", err)
		return func() {}
	}
	if cfg.Tracing.Enabled {
		slog.Info("Tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}
}
