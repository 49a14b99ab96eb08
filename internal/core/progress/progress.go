// Package progress owns the run checkpoint: the next chapter to produce.
//
// # Purpose
//
// The checkpoint is the only durable state of a run. It lets a crashed or
// killed process resume from the first chapter that was not finalized:
//   - Next chapter: where the run loop starts on the next load
//   - Total chapters: copied from the run config, never persisted as authority
//
// # Key Features
//
// Monotonic Saves - A save never moves the checkpoint backwards:
//
//	Save(next=5) after Save(next=4)  (valid)
//	Save(next=3) after Save(next=4)  (ErrCheckpointRegression)
//
// Forward Jumps - Chapters skipped earlier in the run are passed over when a
// later chapter finalizes; the jump is logged, not rejected.
//
// Range Checking - next must stay inside [1, total+1]; total+1 means done.
//
// Operator Reset - Reset bypasses the regression check for manual recovery.
//
// # Quick Start
//
//	manager := progress.NewManager(repo, "my-novel", 240)
//
//	rec, _ := manager.Load(ctx)   // next=1 on a fresh store
//
//	rec.NextChapter = 2           // chapter 1 finalized
//	manager.Save(ctx, rec)        // ✓ OK
//
//	rec.NextChapter = 1
//	manager.Save(ctx, rec)        // ✗ ErrCheckpointRegression
//
// # Package Structure
//
//   - manager.go - Store contract and Manager implementation
//   - metrics.go - Throughput metrics (chapters/hour, recent saves)
package progress

import (
	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// Record is the persisted checkpoint.
type Record = domain.ProgressRecord

// NewManager creates a checkpoint manager for one project.
func NewManager(repo storage.ProgressRepository, project string, totalChapters int) *Manager {
	return &Manager{
		repo:      repo,
		project:   project,
		total:     totalChapters,
		collector: NewMetricsCollector(50),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 50
	}
	return &MetricsCollector{
		windowSize: windowSize,
		saves:      make([]saveRecord, 0, windowSize),
	}
}
