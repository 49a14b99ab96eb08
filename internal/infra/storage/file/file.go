// Package file persists progress and the failed-chapter ledger as small YAML
// documents under the output directory. Every write replaces the whole file
// atomically, so a crash leaves either the old or the new record.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

const (
	// ProgressFile holds one progress record per project.
	ProgressFile = "progress.yaml"

	// FailedChaptersFile is the ledger sidecar.
	FailedChaptersFile = "failed_chapters.yaml"
)

// Storage owns the directory both repositories write into.
type Storage struct {
	dir string
	mu  sync.Mutex
}

// NewStorage creates dir if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create progress dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

func (s *Storage) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readYAML decodes name into out. A missing file leaves out untouched.
func (s *Storage) readYAML(name string, out any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (s *Storage) writeYAML(name string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := atomicwriter.WriteFile(s.path(name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Progress Repository
// -----------------------------------------------------------------------------

type progressDoc struct {
	Projects map[string]domain.ProgressRecord `yaml:"projects"`
}

type ProgressRepo struct {
	store *Storage
}

func NewProgressRepo(store *Storage) *ProgressRepo {
	return &ProgressRepo{store: store}
}

func (r *ProgressRepo) Get(ctx context.Context, project string) (*domain.ProgressRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var doc progressDoc
	if err := r.store.readYAML(ProgressFile, &doc); err != nil {
		return nil, err
	}
	rec, ok := doc.Projects[project]
	if !ok {
		return nil, storage.ErrProgressNotFound
	}
	rec.Project = project
	return &rec, nil
}

func (r *ProgressRepo) Save(ctx context.Context, record *domain.ProgressRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var doc progressDoc
	if err := r.store.readYAML(ProgressFile, &doc); err != nil {
		return err
	}
	if doc.Projects == nil {
		doc.Projects = make(map[string]domain.ProgressRecord)
	}
	rec := *record
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	doc.Projects[record.Project] = rec
	return r.store.writeYAML(ProgressFile, doc)
}

// -----------------------------------------------------------------------------
// Failed Chapter Repository
// -----------------------------------------------------------------------------

type failedEntry struct {
	ID          string    `yaml:"id"`
	Project     string    `yaml:"project"`
	Chapter     int       `yaml:"chapter"`
	Stage       string    `yaml:"stage"`
	Attempts    int       `yaml:"attempts"`
	Error       string    `yaml:"error"`
	RetryCount  int       `yaml:"retry_count"`
	Status      string    `yaml:"status"`
	LastAttempt time.Time `yaml:"last_attempt"`
	CreatedAt   time.Time `yaml:"created_at"`
}

type failedDoc struct {
	Chapters []failedEntry `yaml:"chapters"`
}

func toEntry(f *domain.FailedChapter) failedEntry {
	return failedEntry{
		ID:          f.ID,
		Project:     f.Project,
		Chapter:     f.Chapter,
		Stage:       string(f.Stage),
		Attempts:    f.Attempts,
		Error:       f.Error,
		RetryCount:  f.RetryCount,
		Status:      string(f.Status),
		LastAttempt: f.LastAttempt,
		CreatedAt:   f.CreatedAt,
	}
}

func (e failedEntry) toDomain() *domain.FailedChapter {
	return &domain.FailedChapter{
		ID:          e.ID,
		Project:     e.Project,
		Chapter:     e.Chapter,
		Stage:       domain.Stage(e.Stage),
		Attempts:    e.Attempts,
		Error:       e.Error,
		RetryCount:  e.RetryCount,
		Status:      domain.FailedChapterStatus(e.Status),
		LastAttempt: e.LastAttempt,
		CreatedAt:   e.CreatedAt,
	}
}

type FailedRepo struct {
	store *Storage
}

func NewFailedRepo(store *Storage) *FailedRepo {
	return &FailedRepo{store: store}
}

func (r *FailedRepo) Add(ctx context.Context, f *domain.FailedChapter) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var doc failedDoc
	if err := r.store.readYAML(FailedChaptersFile, &doc); err != nil {
		return err
	}
	doc.Chapters = append(doc.Chapters, toEntry(f))
	return r.store.writeYAML(FailedChaptersFile, doc)
}

func (r *FailedRepo) IncrementRetry(ctx context.Context, id string, stage domain.Stage, attempts int, errMsg string) error {
	return r.update(id, func(e *failedEntry) {
		e.RetryCount++
		e.Stage = string(stage)
		e.Attempts = attempts
		e.Error = errMsg
		e.LastAttempt = time.Now().UTC()
	})
}

func (r *FailedRepo) MarkResolved(ctx context.Context, id string) error {
	return r.update(id, func(e *failedEntry) {
		e.Status = string(domain.FailedChapterStatusResolved)
	})
}

func (r *FailedRepo) update(id string, fn func(*failedEntry)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var doc failedDoc
	if err := r.store.readYAML(FailedChaptersFile, &doc); err != nil {
		return err
	}
	for i := range doc.Chapters {
		if doc.Chapters[i].ID == id {
			fn(&doc.Chapters[i])
			return r.store.writeYAML(FailedChaptersFile, doc)
		}
	}
	return fmt.Errorf("%w: %s", storage.ErrFailedChapterNotFound, id)
}

func (r *FailedRepo) GetPending(ctx context.Context, project string) ([]*domain.FailedChapter, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var doc failedDoc
	if err := r.store.readYAML(FailedChaptersFile, &doc); err != nil {
		return nil, err
	}
	var out []*domain.FailedChapter
	for _, e := range doc.Chapters {
		if e.Project == project && e.Status == string(domain.FailedChapterStatusPending) {
			out = append(out, e.toDomain())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chapter < out[j].Chapter })
	return out, nil
}

func (r *FailedRepo) Count(ctx context.Context, project string) (int, error) {
	pending, err := r.GetPending(ctx, project)
	return len(pending), err
}
