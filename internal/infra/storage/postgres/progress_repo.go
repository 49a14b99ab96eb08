package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// ProgressRepo implements storage.ProgressRepository using PostgreSQL.
type ProgressRepo struct {
	db *DB
}

// NewProgressRepo creates a new PostgreSQL progress repository.
func NewProgressRepo(db *DB) *ProgressRepo {
	return &ProgressRepo{db: db}
}

// Get retrieves the checkpoint for a project.
func (r *ProgressRepo) Get(ctx context.Context, project string) (*domain.ProgressRecord, error) {
	query := `
		SELECT project, next_chapter, total_chapters, updated_at
		FROM progress
		WHERE project = $1
	`

	var row struct {
		Project       string    `db:"project"`
		NextChapter   int       `db:"next_chapter"`
		TotalChapters int       `db:"total_chapters"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	err := r.db.GetContext(ctx, &row, query, project)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	return &domain.ProgressRecord{
		Project:       row.Project,
		NextChapter:   row.NextChapter,
		TotalChapters: row.TotalChapters,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

// Save upserts the checkpoint for a project.
func (r *ProgressRepo) Save(ctx context.Context, record *domain.ProgressRecord) error {
	query := `
		INSERT INTO progress (project, next_chapter, total_chapters, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project) DO UPDATE
		SET next_chapter = EXCLUDED.next_chapter,
		    total_chapters = EXCLUDED.total_chapters,
		    updated_at = EXCLUDED.updated_at
	`
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		record.Project,
		record.NextChapter,
		record.TotalChapters,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
