package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/autowriter/internal/control"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved checkpoint and chapters waiting for a rewrite",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open progress storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	if err := stores.Health(ctx); err != nil {
		slog.Error("Progress storage is unreachable", "backend", cfg.Progress.Backend, "error", err)
		os.Exit(1)
	}

	next := 1
	updated := "-"
	rec, err := stores.Progress.Get(ctx, cfg.Novel.Project)
	switch {
	case errors.Is(err, storage.ErrProgressNotFound):
	case err != nil:
		slog.Error("Failed to read checkpoint", "error", err)
		os.Exit(1)
	default:
		next = rec.NextChapter
		updated = rec.UpdatedAt.Format("2006-01-02 15:04:05")
	}

	pending, err := stores.Failed.Count(ctx, cfg.Novel.Project)
	if err != nil {
		slog.Warn("Failed to count failed chapters", "error", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PROJECT\tNEXT\tTOTAL\tDONE\tFAILED\tUPDATED")
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%d\t%s\n",
		cfg.Novel.Project,
		next,
		cfg.Novel.TotalChapters,
		next > cfg.Novel.TotalChapters,
		pending,
		updated,
	)
	_ = w.Flush()
}
