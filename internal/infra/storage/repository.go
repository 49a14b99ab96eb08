package storage

import (
	"context"
	"errors"

	"github.com/vietddude/autowriter/internal/core/domain"
)

var (
	// ErrProgressNotFound is returned when no checkpoint has been persisted yet.
	ErrProgressNotFound = errors.New("progress not found")

	// ErrFailedChapterNotFound is returned when a ledger entry doesn't exist.
	ErrFailedChapterNotFound = errors.New("failed chapter not found")
)

// ProgressRepository persists the run checkpoint, keyed by project.
type ProgressRepository interface {
	// Get retrieves the checkpoint for a project
	Get(ctx context.Context, project string) (*domain.ProgressRecord, error)

	// Save replaces the checkpoint for a project
	Save(ctx context.Context, record *domain.ProgressRecord) error
}

// FailedChapterRepository handles the ledger of skipped chapters
type FailedChapterRepository interface {
	// Add adds a failed chapter
	Add(ctx context.Context, fc *domain.FailedChapter) error

	// IncrementRetry bumps the retry count of an existing entry after another failed run,
	// recording the stage that failed this time
	IncrementRetry(ctx context.Context, id string, stage domain.Stage, attempts int, errMsg string) error

	// MarkResolved marks an entry resolved (chapter finalized later)
	MarkResolved(ctx context.Context, id string) error

	// GetPending retrieves all pending entries ordered by chapter
	GetPending(ctx context.Context, project string) ([]*domain.FailedChapter, error)

	// Count returns the number of pending entries
	Count(ctx context.Context, project string) (int, error)
}
