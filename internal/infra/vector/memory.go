package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine index kept in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	passages map[string]Passage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{passages: make(map[string]Passage)}
}

func (s *MemoryStore) Upsert(ctx context.Context, passages []Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range passages {
		s.passages[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) DeleteChapter(ctx context.Context, chapter int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.passages {
		if p.Chapter == chapter {
			delete(s.passages, id)
		}
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	hits := make([]Hit, 0, len(s.passages))
	for _, p := range s.passages {
		hits = append(hits, Hit{Chapter: p.Chapter, Text: p.Text, Score: cosine(query, p.Vector)})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Chapter < hits[j].Chapter
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored passages.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
