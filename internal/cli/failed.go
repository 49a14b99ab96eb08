package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/autowriter/internal/control"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List chapters skipped after exhausting their retries",
	Run:   runFailed,
}

func init() {
	rootCmd.AddCommand(failedCmd)
}

func runFailed(cmd *cobra.Command, args []string) {
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

	entries, err := stores.Failed.GetPending(ctx, cfg.Novel.Project)
	if err != nil {
		slog.Error("Failed to list failed chapters", "error", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No failed chapters")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAPTER\tSTAGE\tATTEMPTS\tRUNS\tLAST ATTEMPT\tERROR")
	for _, fc := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n",
			fc.Chapter,
			fc.Stage,
			fc.Attempts,
			fc.RetryCount+1,
			fc.LastAttempt.Format("2006-01-02 15:04:05"),
			truncate(fc.Error, 80),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
