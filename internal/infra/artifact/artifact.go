// Package artifact stores chapter text keyed by chapter number.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ErrArtifactNotFound is returned when a chapter has no stored text.
var ErrArtifactNotFound = errors.New("chapter artifact not found")

// Store reads and replaces chapter artifacts.
type Store interface {
	// Read returns the full text of chapter n.
	Read(ctx context.Context, n int) (string, error)

	// Write replaces the text of chapter n. Previous content is discarded.
	Write(ctx context.Context, n int, text string) error

	// Exists reports whether chapter n has been written.
	Exists(ctx context.Context, n int) (bool, error)
}

// ChapterKey is the relative location of chapter n, shared by all backends.
func ChapterKey(n int) string {
	return path.Join("chapters", fmt.Sprintf("chapter_%d.txt", n))
}
