package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// FailedChapterRepo implements storage.FailedChapterRepository using PostgreSQL.
type FailedChapterRepo struct {
	db *DB
}

// NewFailedChapterRepo creates a new PostgreSQL failed chapter repository.
func NewFailedChapterRepo(db *DB) *FailedChapterRepo {
	return &FailedChapterRepo{db: db}
}

// Add adds a failed chapter.
func (r *FailedChapterRepo) Add(ctx context.Context, fc *domain.FailedChapter) error {
	query := `
		INSERT INTO failed_chapters
			(id, project, chapter, stage, attempts, error_msg, retry_count, status, last_attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	status := string(fc.Status)
	if status == "" {
		status = string(domain.FailedChapterStatusPending)
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		fc.ID,
		fc.Project,
		fc.Chapter,
		string(fc.Stage),
		fc.Attempts,
		fc.Error,
		fc.RetryCount,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to add failed chapter: %w", err)
	}
	return nil
}

// IncrementRetry records another exhausted run for an existing entry.
func (r *FailedChapterRepo) IncrementRetry(ctx context.Context, id string, stage domain.Stage, attempts int, errMsg string) error {
	query := `
		UPDATE failed_chapters
		SET retry_count = retry_count + 1, stage = $2, attempts = $3, error_msg = $4, last_attempt = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "increment retry", query, id, string(stage), attempts, errMsg)
}

// MarkResolved marks a failed chapter as resolved.
func (r *FailedChapterRepo) MarkResolved(ctx context.Context, id string) error {
	query := `
		UPDATE failed_chapters
		SET status = 'resolved'
		WHERE id = $1
	`
	return r.exec(ctx, "mark resolved", query, id)
}

func (r *FailedChapterRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %v", storage.ErrFailedChapterNotFound, args[0])
	}
	return nil
}

// GetPending returns pending entries ordered by chapter.
func (r *FailedChapterRepo) GetPending(
	ctx context.Context,
	project string,
) ([]*domain.FailedChapter, error) {
	query := `
		SELECT id, project, chapter, stage, attempts, error_msg, retry_count, status, last_attempt, created_at
		FROM failed_chapters
		WHERE project = $1 AND status = 'pending'
		ORDER BY chapter ASC
	`

	var rows []*domain.FailedChapter
	if err := r.db.SelectContext(ctx, &rows, query, project); err != nil {
		return nil, fmt.Errorf("failed to get pending chapters: %w", err)
	}
	return rows, nil
}

// Count returns the number of pending failed chapters.
func (r *FailedChapterRepo) Count(ctx context.Context, project string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM failed_chapters
		WHERE project = $1 AND status = 'pending'
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, project); err != nil {
		return 0, fmt.Errorf("failed to count failed chapters: %w", err)
	}
	return count, nil
}
