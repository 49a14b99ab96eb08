package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/autowriter/internal/control"
	"github.com/vietddude/autowriter/internal/core/progress"
)

var resetProgressCmd = &cobra.Command{
	Use:   "reset-progress [chapter]",
	Short: "Set the next chapter to write, allowing the checkpoint to move backwards",
	Args:  cobra.ExactArgs(1),
	Run:   runResetProgress,
}

func init() {
	rootCmd.AddCommand(resetProgressCmd)
}

func runResetProgress(cmd *cobra.Command, args []string) {
	chapter, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Invalid chapter: %v\n", err)
		os.Exit(1)
	}

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

	manager := progress.NewManager(stores.Progress, cfg.Novel.Project, cfg.Novel.TotalChapters)
	if err := manager.Reset(ctx, chapter); err != nil {
		slog.Error("Failed to reset progress", "error", err)
		_ = stores.Close()
		os.Exit(1)
	}

	fmt.Printf("Successfully reset %s to chapter %d\n", cfg.Novel.Project, chapter)
}
