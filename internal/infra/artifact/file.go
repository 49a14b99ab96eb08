package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// FileStore keeps artifacts under <root>/chapters/chapter_<n>.txt.
type FileStore struct {
	root string
}

// NewFileStore creates the chapters directory under root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "chapters"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chapters dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Path returns the on-disk location of chapter n.
func (s *FileStore) Path(n int) string {
	return filepath.Join(s.root, filepath.FromSlash(ChapterKey(n)))
}

// Read returns the text of chapter n.
func (s *FileStore) Read(ctx context.Context, n int) (string, error) {
	data, err := os.ReadFile(s.Path(n))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: chapter %d", ErrArtifactNotFound, n)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chapter %d: %w", n, err)
	}
	return string(data), nil
}

// Write atomically replaces the text of chapter n.
func (s *FileStore) Write(ctx context.Context, n int, text string) error {
	if err := atomicwriter.WriteFile(s.Path(n), []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write chapter %d: %w", n, err)
	}
	return nil
}

// Exists reports whether chapter n is on disk.
func (s *FileStore) Exists(ctx context.Context, n int) (bool, error) {
	_, err := os.Stat(s.Path(n))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat chapter %d: %w", n, err)
	}
	return true, nil
}
