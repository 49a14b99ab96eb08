package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/autowriter/internal/control"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Write chapters from the saved checkpoint to the end of the book",
	Run:   runWriter,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWriter(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopTracing := initTracing(ctx, cfg)
	defer stopTracing()

	app, err := control.NewApp(ctx, cfg, control.Deps{})
	if err != nil {
		slog.Error("Failed to initialize autowriter", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}()

	slog.Info("Autowriter started",
		"config", cfgPath,
		"project", cfg.Novel.Project,
		"chapters", cfg.Novel.TotalChapters,
	)

	report, err := app.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("Interrupted, progress is saved up to the last finalized chapter")
	case err != nil:
		slog.Error("Run stopped", "error", err)
		_ = app.Close()
		stopTracing()
		os.Exit(1)
	case report != nil && !report.Complete():
		slog.Warn("Run ended with chapters left to write", "next_chapter", report.Checkpoint)
	}
}
