package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// MemoryStorage keeps progress and the failed-chapter ledger in process memory.
type MemoryStorage struct {
	progress map[string]*domain.ProgressRecord
	failed   map[string]*domain.FailedChapter
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		progress: make(map[string]*domain.ProgressRecord),
		failed:   make(map[string]*domain.FailedChapter),
	}
}

// -----------------------------------------------------------------------------
// Progress Repository
// -----------------------------------------------------------------------------

type ProgressRepo struct {
	store *MemoryStorage
}

func NewProgressRepo(store *MemoryStorage) *ProgressRepo {
	return &ProgressRepo{store: store}
}

func (r *ProgressRepo) Get(ctx context.Context, project string) (*domain.ProgressRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if p, ok := r.store.progress[project]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, storage.ErrProgressNotFound
}

func (r *ProgressRepo) Save(ctx context.Context, record *domain.ProgressRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copy := *record
	r.store.progress[record.Project] = &copy
	return nil
}

// -----------------------------------------------------------------------------
// Failed Chapter Repository
// -----------------------------------------------------------------------------

type FailedRepo struct{ store *MemoryStorage }

func NewFailedRepo(s *MemoryStorage) *FailedRepo { return &FailedRepo{store: s} }

func (r *FailedRepo) Add(ctx context.Context, f *domain.FailedChapter) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copy := *f
	r.store.failed[f.ID] = &copy
	return nil
}

func (r *FailedRepo) IncrementRetry(ctx context.Context, id string, stage domain.Stage, attempts int, errMsg string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.failed[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrFailedChapterNotFound, id)
	}
	f.RetryCount++
	f.Stage = stage
	f.Attempts = attempts
	f.Error = errMsg
	f.LastAttempt = time.Now()
	return nil
}

func (r *FailedRepo) MarkResolved(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.failed[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrFailedChapterNotFound, id)
	}
	f.Status = domain.FailedChapterStatusResolved
	return nil
}

func (r *FailedRepo) GetPending(ctx context.Context, project string) ([]*domain.FailedChapter, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.FailedChapter
	for _, f := range r.store.failed {
		if f.Project == project && f.Status == domain.FailedChapterStatusPending {
			copy := *f
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chapter < out[j].Chapter })
	return out, nil
}

func (r *FailedRepo) Count(ctx context.Context, project string) (int, error) {
	pending, err := r.GetPending(ctx, project)
	return len(pending), err
}
