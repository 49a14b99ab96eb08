package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// FailedChapterRepo implements storage.FailedChapterRepository using Redis.
// Entries are JSON values; a sorted set scored by chapter number indexes the
// pending ones.
type FailedChapterRepo struct {
	rdb    *redis.Client
	prefix string
}

// NewFailedChapterRepo creates a new Redis-backed failed chapter repository.
func NewFailedChapterRepo(client *Client) *FailedChapterRepo {
	return &FailedChapterRepo{
		rdb:    client.rdb,
		prefix: client.prefix,
	}
}

// Key helpers
func (r *FailedChapterRepo) pendingKey(project string) string {
	return fmt.Sprintf("%s:failed_chapters:%s", r.prefix, project)
}

func (r *FailedChapterRepo) entryKey(id string) string {
	return fmt.Sprintf("%s:failed_chapter:%s", r.prefix, id)
}

// Add stores a failed chapter and indexes it as pending.
func (r *FailedChapterRepo) Add(ctx context.Context, fc *domain.FailedChapter) error {
	if fc.Status == "" {
		fc.Status = domain.FailedChapterStatusPending
	}
	if err := r.put(ctx, fc); err != nil {
		return err
	}

	if err := r.rdb.ZAdd(ctx, r.pendingKey(fc.Project), redis.Z{
		Score:  float64(fc.Chapter),
		Member: fc.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to pending set: %w", err)
	}
	return nil
}

// IncrementRetry records another exhausted run for an existing entry.
func (r *FailedChapterRepo) IncrementRetry(ctx context.Context, id string, stage domain.Stage, attempts int, errMsg string) error {
	fc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	fc.RetryCount++
	fc.Stage = stage
	fc.Attempts = attempts
	fc.Error = errMsg
	fc.LastAttempt = time.Now()

	return r.put(ctx, fc)
}

// MarkResolved flags the entry resolved and drops it from the pending set.
// The entry itself is kept for history.
func (r *FailedChapterRepo) MarkResolved(ctx context.Context, id string) error {
	fc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	fc.Status = domain.FailedChapterStatusResolved
	if err := r.put(ctx, fc); err != nil {
		return err
	}

	if err := r.rdb.ZRem(ctx, r.pendingKey(fc.Project), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from pending set: %w", err)
	}
	return nil
}

// GetPending returns pending entries ordered by chapter.
func (r *FailedChapterRepo) GetPending(ctx context.Context, project string) ([]*domain.FailedChapter, error) {
	ids, err := r.rdb.ZRange(ctx, r.pendingKey(project), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	chapters := make([]*domain.FailedChapter, 0, len(ids))
	for _, id := range ids {
		fc, err := r.get(ctx, id)
		if err != nil {
			// Dangling index entry, drop it
			r.rdb.ZRem(ctx, r.pendingKey(project), id)
			continue
		}
		chapters = append(chapters, fc)
	}
	return chapters, nil
}

// Count returns the number of pending entries.
func (r *FailedChapterRepo) Count(ctx context.Context, project string) (int, error) {
	count, err := r.rdb.ZCard(ctx, r.pendingKey(project)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

func (r *FailedChapterRepo) get(ctx context.Context, id string) (*domain.FailedChapter, error) {
	data, err := r.rdb.Get(ctx, r.entryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrFailedChapterNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed chapter: %w", err)
	}

	var fc domain.FailedChapter
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed chapter: %w", err)
	}
	return &fc, nil
}

func (r *FailedChapterRepo) put(ctx context.Context, fc *domain.FailedChapter) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal failed chapter: %w", err)
	}
	if err := r.rdb.Set(ctx, r.entryKey(fc.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set failed chapter: %w", err)
	}
	return nil
}
