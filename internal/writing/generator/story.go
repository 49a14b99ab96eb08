package generator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
)

// Long-term story state files kept next to the chapters directory.
const (
	ArchitectureFile   = "novel_architecture.txt"
	DirectoryFile      = "novel_directory.txt"
	GlobalSummaryFile  = "global_summary.txt"
	CharacterStateFile = "character_state.txt"
)

// StoryFiles reads and replaces the long-term story state files.
type StoryFiles struct {
	dir string
}

// NewStoryFiles creates dir if needed.
func NewStoryFiles(dir string) (*StoryFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create story dir: %w", err)
	}
	return &StoryFiles{dir: dir}, nil
}

// Read returns the trimmed content of name, or "" when it doesn't exist.
func (s *StoryFiles) Read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write atomically replaces name.
func (s *StoryFiles) Write(name, text string) error {
	if err := atomicwriter.WriteFile(filepath.Join(s.dir, name), []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
