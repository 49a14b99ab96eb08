package runner

import (
	"log/slog"
	"time"

	"github.com/vietddude/autowriter/internal/core/domain"
)

// SkippedChapter describes a chapter abandoned after exhausted retries.
type SkippedChapter struct {
	Chapter  int          `json:"chapter"`
	Stage    domain.Stage `json:"stage"`
	Attempts int          `json:"attempts"`
	Reason   string       `json:"reason"`
}

// Report summarizes one run.
type Report struct {
	StartChapter int              `json:"start_chapter"`
	Total        int              `json:"total_chapters"`
	Checkpoint   int              `json:"checkpoint"`
	Finalized    []int            `json:"finalized"`
	Skipped      []SkippedChapter `json:"skipped"`
	Enrichments  int              `json:"enrichments"`
	StartedAt    time.Time        `json:"started_at"`
	Elapsed      time.Duration    `json:"elapsed"`
}

func newReport(start, total int) *Report {
	return &Report{
		StartChapter: start,
		Total:        total,
		Checkpoint:   start,
		StartedAt:    time.Now(),
	}
}

// Complete reports whether the persisted checkpoint covers every chapter.
func (r *Report) Complete() bool {
	return r.Checkpoint > r.Total
}

// SkippedNumbers returns the chapter numbers that were skipped.
func (r *Report) SkippedNumbers() []int {
	out := make([]int, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		out = append(out, s.Chapter)
	}
	return out
}

// Log writes the one-line run summary.
func (r *Report) Log(log *slog.Logger) {
	attrs := []any{
		"finalized", len(r.Finalized),
		"skipped", len(r.Skipped),
		"enrichments", r.Enrichments,
		"checkpoint", r.Checkpoint,
		"total", r.Total,
		"elapsed", r.Elapsed.Round(time.Second),
	}
	if len(r.Skipped) > 0 {
		log.Warn("Run finished with skipped chapters", append(attrs, "skipped_chapters", r.SkippedNumbers())...)
		return
	}
	log.Info("Run finished", attrs...)
}
