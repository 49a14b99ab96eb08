// Package runner drives the chapter pipeline across the configured chapter
// range, wrapping each stage in the retry executor and checkpointing after
// every finalized chapter.
//
// A chapter whose stage exhausts its retries is skipped: the loop moves to the
// next chapter in memory only and the checkpoint is not written for it. A
// later successful chapter then advances the checkpoint past the skipped one,
// so a restart will not revisit it. Skipped chapters are recorded in the
// failed-chapter ledger and in the returned Report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/core/progress"
	"github.com/vietddude/autowriter/internal/core/retry"
	"github.com/vietddude/autowriter/internal/writing/metrics"
	"github.com/vietddude/autowriter/internal/writing/pipeline"
	"github.com/vietddude/autowriter/internal/writing/recovery"
)

// ErrAlreadyRunning is returned when Run is called on a runner that is running.
var ErrAlreadyRunning = errors.New("runner already running")

// ChapterPipeline is the per-chapter state machine driven by the loop.
type ChapterPipeline interface {
	Draft(ctx context.Context, n int) error
	Finalize(ctx context.Context, n int) error
	MarkFailed(n int, stage domain.Stage, cause error)
	State(n int) pipeline.State
	Enrichments() int
}

// Config holds runner dependencies.
type Config struct {
	Run      domain.RunConfig
	Progress progress.Store
	Pipeline ChapterPipeline
	Executor *retry.Executor
	Ledger   *recovery.Ledger
	Logger   *slog.Logger
}

// Status is a point-in-time view of the run, safe to read from other goroutines.
type Status struct {
	Running    bool             `json:"running"`
	Current    int              `json:"current_chapter"`
	State      pipeline.State   `json:"state"`
	Checkpoint int              `json:"checkpoint"`
	Total      int              `json:"total_chapters"`
	Finalized  []int            `json:"finalized"`
	Skipped    []SkippedChapter `json:"skipped"`
	StartedAt  time.Time        `json:"started_at"`
}

// Runner implements the run loop.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	running atomic.Bool

	mu      sync.RWMutex
	current int
	report  *Report
}

// New creates a runner.
func New(cfg Config) *Runner {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Executor == nil {
		cfg.Executor = retry.NewExecutor(retry.WithLogger(log))
	}
	if cfg.Ledger == nil {
		cfg.Ledger = recovery.NewLedger(nil, cfg.Run.Project, log)
	}
	return &Runner{
		cfg: cfg,
		log: log.With("component", "runner"),
	}
}

// Run produces chapters from the persisted checkpoint through TotalChapters.
// It returns early only on cancellation or a failed checkpoint write.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	total := r.cfg.Run.TotalChapters

	rec, err := r.cfg.Progress.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	report := newReport(rec.NextChapter, total)
	r.mu.Lock()
	r.report = report
	r.mu.Unlock()
	metrics.CheckpointNextChapter.Set(float64(rec.NextChapter))

	if rec.NextChapter > total {
		r.log.Info("All chapters already finalized", "total", total)
		return r.finish(report), nil
	}
	r.log.Info("Starting run",
		"project", r.cfg.Run.Project,
		"from_chapter", rec.NextChapter,
		"total", total,
		"max_retries", r.cfg.Run.MaxRetries,
		"retry_delay", r.cfg.Run.RetryDelay,
	)

	for c := rec.NextChapter; c <= total; c++ {
		if err := ctx.Err(); err != nil {
			return r.finish(report), err
		}
		if err := r.processChapter(ctx, c, report); err != nil {
			return r.finish(report), err
		}
	}

	return r.finish(report), nil
}

// processChapter runs draft then finalize for chapter c. A returned error
// ends the run.
func (r *Runner) processChapter(ctx context.Context, c int, report *Report) error {
	r.mu.Lock()
	r.current = c
	r.mu.Unlock()

	log := r.log.With("chapter", c)
	log.Info("Starting chapter", "total", r.cfg.Run.TotalChapters)

	draft := r.execute(ctx, domain.StageDraft, func(ctx context.Context) error {
		return r.cfg.Pipeline.Draft(ctx, c)
	})
	if draft.Cancelled {
		return ctx.Err()
	}
	if !draft.OK() {
		log.Error("Draft failed, skipping chapter", "attempts", draft.Attempts, "error", draft.Err)
		r.skip(ctx, c, domain.StageDraft, draft, report)
		return nil
	}
	log.Info("Draft succeeded", "attempts", draft.Attempts)

	finalize := r.execute(ctx, domain.StageFinalize, func(ctx context.Context) error {
		return r.cfg.Pipeline.Finalize(ctx, c)
	})
	if finalize.Cancelled {
		return ctx.Err()
	}
	if !finalize.OK() {
		log.Error("Finalize failed, chapter kept as draft", "attempts", finalize.Attempts, "error", finalize.Err)
		r.skip(ctx, c, domain.StageFinalize, finalize, report)
		return nil
	}

	next := c + 1
	err := r.cfg.Progress.Save(ctx, progress.Record{
		Project:       r.cfg.Run.Project,
		NextChapter:   next,
		TotalChapters: r.cfg.Run.TotalChapters,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint after chapter %d: %w", c, err)
	}

	r.mu.Lock()
	report.Finalized = append(report.Finalized, c)
	report.Checkpoint = next
	r.mu.Unlock()

	metrics.ChaptersFinalized.Inc()
	metrics.CheckpointNextChapter.Set(float64(next))
	log.Info("Chapter finalized", "attempts", finalize.Attempts, "checkpoint", next)

	if err := r.cfg.Ledger.Resolve(ctx, c); err != nil {
		log.Warn("Failed to resolve ledger entry", "error", err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, stage domain.Stage, op retry.Operation) retry.Outcome {
	return r.cfg.Executor.Execute(ctx, string(stage), op, r.cfg.Run.MaxRetries, r.cfg.Run.RetryDelay)
}

// skip abandons chapter c for this run without touching the checkpoint.
func (r *Runner) skip(
	ctx context.Context,
	c int,
	stage domain.Stage,
	outcome retry.Outcome,
	report *Report,
) {
	r.cfg.Pipeline.MarkFailed(c, stage, outcome.Err)
	metrics.ChaptersSkipped.WithLabelValues(string(stage)).Inc()

	reason := ""
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	r.mu.Lock()
	report.Skipped = append(report.Skipped, SkippedChapter{
		Chapter:  c,
		Stage:    stage,
		Attempts: outcome.Attempts,
		Reason:   reason,
	})
	r.mu.Unlock()

	if err := r.cfg.Ledger.Record(ctx, c, stage, outcome); err != nil {
		r.log.Warn("Failed to record skipped chapter", "chapter", c, "error", err)
	}
}

func (r *Runner) finish(report *Report) *Report {
	r.mu.Lock()
	report.Enrichments = r.cfg.Pipeline.Enrichments()
	report.Elapsed = time.Since(report.StartedAt)
	r.mu.Unlock()

	report.Log(r.log)
	return report
}

// Status returns a snapshot of the current run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{
		Running: r.running.Load(),
		Current: r.current,
		Total:   r.cfg.Run.TotalChapters,
	}
	if r.current > 0 {
		st.State = r.cfg.Pipeline.State(r.current)
	}
	if r.report != nil {
		st.Checkpoint = r.report.Checkpoint
		st.StartedAt = r.report.StartedAt
		st.Finalized = append([]int(nil), r.report.Finalized...)
		st.Skipped = append([]SkippedChapter(nil), r.report.Skipped...)
	}
	return st
}
