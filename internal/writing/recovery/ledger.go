// Package recovery records chapters abandoned by the skip policy so an
// operator can see what the checkpoint silently stepped over.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/core/retry"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// Ledger writes and resolves failed-chapter entries for one project.
type Ledger struct {
	repo    storage.FailedChapterRepository
	project string
	log     *slog.Logger
}

// NewLedger creates a ledger. A nil repo yields a ledger that only logs.
func NewLedger(repo storage.FailedChapterRepository, project string, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		repo:    repo,
		project: project,
		log:     log.With("component", "ledger"),
	}
}

// Record is called by the run loop when a stage exhausts its retries.
// An existing pending entry for the same chapter is bumped instead of duplicated.
func (l *Ledger) Record(
	ctx context.Context,
	chapter int,
	stage domain.Stage,
	outcome retry.Outcome,
) error {
	msg := ""
	if outcome.Err != nil {
		msg = outcome.Err.Error()
	}

	if l.repo == nil {
		l.log.Warn("Chapter skipped", "chapter", chapter, "stage", stage, "error", msg)
		return nil
	}

	existing, err := l.find(ctx, chapter)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := l.repo.IncrementRetry(ctx, existing.ID, stage, outcome.Attempts, msg); err != nil {
			return fmt.Errorf("failed to increment retry: %w", err)
		}
		return nil
	}

	now := time.Now()
	fc := &domain.FailedChapter{
		ID:          uuid.New().String(),
		Project:     l.project,
		Chapter:     chapter,
		Stage:       stage,
		Attempts:    outcome.Attempts,
		Error:       msg,
		RetryCount:  0,
		Status:      domain.FailedChapterStatusPending,
		LastAttempt: now,
		CreatedAt:   now,
	}
	if err := l.repo.Add(ctx, fc); err != nil {
		return fmt.Errorf("failed to add failed chapter: %w", err)
	}
	return nil
}

// Resolve marks any pending entry for chapter as resolved.
func (l *Ledger) Resolve(ctx context.Context, chapter int) error {
	if l.repo == nil {
		return nil
	}
	existing, err := l.find(ctx, chapter)
	if err != nil || existing == nil {
		return err
	}
	if err := l.repo.MarkResolved(ctx, existing.ID); err != nil {
		return fmt.Errorf("failed to resolve chapter %d: %w", chapter, err)
	}
	l.log.Info("Previously skipped chapter finalized", "chapter", chapter)
	return nil
}

// Pending lists unresolved entries ordered by chapter.
func (l *Ledger) Pending(ctx context.Context) ([]*domain.FailedChapter, error) {
	if l.repo == nil {
		return nil, nil
	}
	return l.repo.GetPending(ctx, l.project)
}

func (l *Ledger) find(ctx context.Context, chapter int) (*domain.FailedChapter, error) {
	pending, err := l.repo.GetPending(ctx, l.project)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chapters: %w", err)
	}
	for _, fc := range pending {
		if fc.Chapter == chapter {
			return fc, nil
		}
	}
	return nil, nil
}
