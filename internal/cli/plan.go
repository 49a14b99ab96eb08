package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/autowriter/internal/control"
)

var overwritePlan bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate the novel architecture and chapter blueprint",
	Run:   runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&overwritePlan, "overwrite", false, "regenerate files that already exist")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) {
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
		_ = app.Close()
	}()

	if err := app.Plan(ctx, overwritePlan); err != nil {
		slog.Error("Failed to generate plan", "error", err)
		_ = app.Close()
		stopTracing()
		os.Exit(1)
	}
	slog.Info("Plan written", "dir", cfg.Novel.OutputDir)
}
