package vector

import (
	"context"
	"testing"
)

func TestMemoryStore_SearchOrdersByCosine(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Upsert(ctx, []Passage{
		{ID: "1-0", Chapter: 1, Text: "east", Vector: []float32{1, 0}},
		{ID: "2-0", Chapter: 2, Text: "north", Vector: []float32{0, 1}},
		{ID: "3-0", Chapter: 3, Text: "north-east", Vector: []float32{1, 1}},
	})

	hits, err := s.Search(ctx, []float32{0, 2}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Text != "north" || hits[1].Text != "north-east" {
		t.Errorf("unexpected order: %+v", hits)
	}
}

func TestMemoryStore_UpsertReplacesAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Upsert(ctx, []Passage{{ID: "1-0", Chapter: 1, Text: "old", Vector: []float32{1}}})
	_ = s.Upsert(ctx, []Passage{
		{ID: "1-0", Chapter: 1, Text: "new", Vector: []float32{1}},
		{ID: "1-1", Chapter: 1, Text: "more", Vector: []float32{1}},
		{ID: "2-0", Chapter: 2, Text: "other", Vector: []float32{1}},
	})
	if s.Len() != 3 {
		t.Fatalf("expected 3 passages, got %d", s.Len())
	}

	_ = s.DeleteChapter(ctx, 1)
	if s.Len() != 1 {
		t.Fatalf("expected 1 passage after delete, got %d", s.Len())
	}
	hits, _ := s.Search(ctx, []float32{1}, 5)
	if len(hits) != 1 || hits[0].Chapter != 2 {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestMemoryStore_ZeroK(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Upsert(context.Background(), []Passage{{ID: "a", Vector: []float32{1}}})
	if hits, _ := s.Search(context.Background(), []float32{1}, 0); hits != nil {
		t.Errorf("expected no hits for k=0, got %+v", hits)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(tt.a, tt.b)
			if d := got - tt.want; d > 1e-6 || d < -1e-6 {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}
