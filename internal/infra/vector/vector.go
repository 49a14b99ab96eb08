// Package vector stores embedded chapter passages for retrieval.
package vector

import "context"

// Passage is one embedded slice of a finalized chapter.
type Passage struct {
	ID      string
	Chapter int
	Text    string
	Vector  []float32
}

// Hit is a search result.
type Hit struct {
	Chapter int
	Text    string
	Score   float32
}

// Store indexes passages for one project.
type Store interface {
	// Upsert adds passages, replacing any with the same ID.
	Upsert(ctx context.Context, passages []Passage) error

	// DeleteChapter removes every passage of a chapter.
	DeleteChapter(ctx context.Context, chapter int) error

	// Search returns up to k passages nearest to query, best first.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
}

// Nop is a Store that keeps nothing. Used when vector.backend is none.
type Nop struct{}

func (Nop) Upsert(context.Context, []Passage) error               { return nil }
func (Nop) DeleteChapter(context.Context, int) error              { return nil }
func (Nop) Search(context.Context, []float32, int) ([]Hit, error) { return nil, nil }
