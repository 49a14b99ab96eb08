package artifact

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	texts  map[int]string
	writes map[int]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		texts:  make(map[int]string),
		writes: make(map[int]int),
	}
}

func (s *MemoryStore) Read(ctx context.Context, n int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.texts[n]
	if !ok {
		return "", fmt.Errorf("%w: chapter %d", ErrArtifactNotFound, n)
	}
	return text, nil
}

func (s *MemoryStore) Write(ctx context.Context, n int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[n] = text
	s.writes[n]++
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, n int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.texts[n]
	return ok, nil
}

// Writes returns how many times chapter n was written.
func (s *MemoryStore) Writes(n int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[n]
}
