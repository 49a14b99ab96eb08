package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/autowriter/internal/infra/storage"
)

var (
	// ErrCheckpointRegression is returned when a save would move the checkpoint backwards.
	ErrCheckpointRegression = errors.New("checkpoint regression")

	// ErrOutOfRange is returned when next chapter is outside [1, total+1].
	ErrOutOfRange = errors.New("next chapter out of range")

	// ErrProjectMismatch is returned when a record belongs to another project.
	ErrProjectMismatch = errors.New("progress record project mismatch")
)

// Store is the checkpoint contract used by the run loop.
type Store interface {
	// Load returns the persisted checkpoint, defaulting to chapter 1.
	Load(ctx context.Context) (Record, error)

	// Save persists a new checkpoint after a chapter is finalized.
	Save(ctx context.Context, record Record) error
}

// Manager implements Store with monotonicity and range enforcement.
type Manager struct {
	repo      storage.ProgressRepository
	project   string
	total     int
	mu        sync.Mutex
	last      int // last persisted next chapter, 0 = unknown
	collector *MetricsCollector
	onSave    func(Record)
}

// Load retrieves the checkpoint. A missing record starts at chapter 1.
func (m *Manager) Load(ctx context.Context) (Record, error) {
	rec, err := m.repo.Get(ctx, m.project)
	if errors.Is(err, storage.ErrProgressNotFound) || (err == nil && rec == nil) {
		m.mu.Lock()
		m.last = 1
		m.mu.Unlock()
		return Record{Project: m.project, NextChapter: 1, TotalChapters: m.total}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load progress: %w", err)
	}

	out := Record{
		Project:       m.project,
		NextChapter:   rec.NextChapter,
		TotalChapters: m.total,
		UpdatedAt:     rec.UpdatedAt,
	}

	if rec.TotalChapters != 0 && rec.TotalChapters != m.total {
		slog.Warn("Persisted total differs from config, using config",
			"project", m.project,
			"persisted", rec.TotalChapters,
			"configured", m.total,
		)
	}

	if !out.InRange() {
		clamped := min(max(out.NextChapter, 1), m.total+1)
		slog.Warn("Persisted next chapter out of range, clamping",
			"next", out.NextChapter,
			"total", m.total,
			"clamped", clamped,
		)
		out.NextChapter = clamped
	}

	m.mu.Lock()
	m.last = out.NextChapter
	m.mu.Unlock()

	return out, nil
}

// Save persists a checkpoint. Saving the current value again is a no-op.
func (m *Manager) Save(ctx context.Context, record Record) error {
	if record.Project != "" && record.Project != m.project {
		return fmt.Errorf("%w: %s != %s", ErrProjectMismatch, record.Project, m.project)
	}
	if record.NextChapter < 1 || record.NextChapter > m.total+1 {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrOutOfRange, record.NextChapter, m.total+1)
	}

	saved, err := m.advance(ctx, record.NextChapter)
	if err != nil || saved == nil {
		return err
	}
	m.notify(*saved)
	return nil
}

// advance persists next if it moves the checkpoint forward. A nil record
// means next equals the persisted value and nothing was written.
func (m *Manager) advance(ctx context.Context, next int) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == 0 {
		current, err := m.repo.Get(ctx, m.project)
		switch {
		case errors.Is(err, storage.ErrProgressNotFound) || (err == nil && current == nil):
			m.last = 1
		case err != nil:
			return nil, fmt.Errorf("failed to read progress: %w", err)
		default:
			m.last = current.NextChapter
		}
	}

	if next < m.last {
		return nil, fmt.Errorf(
			"%w: persisted %d, got %d",
			ErrCheckpointRegression,
			m.last,
			next,
		)
	}
	if next == m.last {
		return nil, nil
	}
	if skipped := next - m.last - 1; skipped > 0 {
		slog.Info("Checkpoint passes over unfinished chapters",
			"project", m.project,
			"from", m.last,
			"to", next,
			"skipped", skipped,
		)
	}

	return m.persist(ctx, next)
}

// Reset overrides the checkpoint, allowing it to move backwards.
func (m *Manager) Reset(ctx context.Context, next int) error {
	if next < 1 || next > m.total+1 {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrOutOfRange, next, m.total+1)
	}

	m.mu.Lock()
	slog.Warn("Resetting checkpoint", "project", m.project, "from", m.last, "to", next)
	saved, err := m.persist(ctx, next)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.notify(*saved)
	return nil
}

// persist writes next and updates bookkeeping. Caller holds m.mu.
func (m *Manager) persist(ctx context.Context, next int) (*Record, error) {
	rec := &Record{
		Project:       m.project,
		NextChapter:   next,
		TotalChapters: m.total,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := m.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}

	m.last = next
	m.collector.RecordSave(next, rec.UpdatedAt)
	return rec, nil
}

// notify runs the save callback without holding m.mu.
func (m *Manager) notify(rec Record) {
	m.mu.Lock()
	fn := m.onSave
	m.mu.Unlock()

	if fn != nil {
		fn(rec)
	}
}

// Current returns the last known persisted next chapter (0 before Load/Save).
func (m *Manager) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Total returns the configured chapter count.
func (m *Manager) Total() int {
	return m.total
}

// GetMetrics returns throughput metrics for this run.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collector.GetMetrics()
}

// SetSaveCallback registers a callback invoked after each successful save.
func (m *Manager) SetSaveCallback(fn func(Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSave = fn
}
