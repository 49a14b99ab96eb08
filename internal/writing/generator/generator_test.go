package generator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/artifact"
	"github.com/vietddude/autowriter/internal/infra/llm"
	"github.com/vietddude/autowriter/internal/infra/vector"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeChat answers by the first matching prompt prefix.
type fakeChat struct {
	mu      sync.Mutex
	prompts []string
	replies map[string]string
	failOn  string
}

func (c *fakeChat) Complete(ctx context.Context, msg llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, msg.User)
	if c.failOn != "" && strings.Contains(msg.User, c.failOn) {
		return "", errors.New("service unavailable")
	}
	for prefix, reply := range c.replies {
		if strings.HasPrefix(msg.User, prefix) {
			return reply, nil
		}
	}
	return "generated", nil
}

func (c *fakeChat) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[len(c.prompts)-1]
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

type fixture struct {
	gen     *Generator
	chat    *fakeChat
	store   *artifact.MemoryStore
	vectors *vector.MemoryStore
	story   *StoryFiles
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	story, err := NewStoryFiles(t.TempDir())
	if err != nil {
		t.Fatalf("NewStoryFiles failed: %v", err)
	}
	f := &fixture{
		chat:    &fakeChat{replies: map[string]string{}},
		store:   artifact.NewMemoryStore(),
		vectors: vector.NewMemoryStore(),
		story:   story,
	}
	f.gen = New(Config{
		Run: domain.RunConfig{
			TotalChapters: 3,
			WordNumber:    100,
			RetrievalK:    2,
			Params:        domain.GenerationParams{Topic: "a lighthouse keeper", Genre: "mystery", SceneLocation: "harbor"},
		},
		Chat:      f.chat,
		Embedder:  fakeEmbedder{},
		Vectors:   f.vectors,
		Artifacts: f.store,
		Story:     story,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// =============================================================================
// Tests
// =============================================================================

func TestPlan_WritesArchitectureAndBlueprint(t *testing.T) {
	f := newFixture(t)
	f.chat.replies["Design the architecture"] = "ARCH"
	f.chat.replies["Using the novel architecture"] = "Chapter 1 - Arrival\nChapter 2 - Storm"

	if err := f.gen.Plan(context.Background(), false); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	arch, _ := f.story.Read(ArchitectureFile)
	bp, _ := f.story.Read(DirectoryFile)
	if arch != "ARCH" || !strings.HasPrefix(bp, "Chapter 1") {
		t.Errorf("unexpected plan files: %q / %q", arch, bp)
	}
	if !strings.Contains(f.chat.last(), "ARCH") {
		t.Error("blueprint prompt should include the architecture")
	}

	// Existing files are kept unless overwrite is set
	calls := len(f.chat.prompts)
	_ = f.gen.Plan(context.Background(), false)
	if len(f.chat.prompts) != calls {
		t.Error("Plan without overwrite should not regenerate")
	}
}

func TestDraft_UsesStoryStateAndWritesArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.story.Write(DirectoryFile, "Chapter 1 - Arrival\nShe arrives.\nChapter 2 - Storm\nThe storm hits.\nChapter 3 - Dawn")
	_ = f.story.Write(GlobalSummaryFile, "SUMMARY")
	_ = f.store.Write(ctx, 1, "previous chapter ending")
	_ = f.vectors.Upsert(ctx, []vector.Passage{{ID: "ch1-0", Chapter: 1, Text: "the lamp flickered", Vector: []float32{1, 0}}})
	f.chat.replies["Write chapter 2"] = "chapter two text"

	req := domain.ChapterRequest{Number: 2, TotalChapters: 3, WordNumber: 100}
	if err := f.gen.Draft(ctx, req); err != nil {
		t.Fatalf("Draft failed: %v", err)
	}

	got, _ := f.store.Read(ctx, 2)
	if got != "chapter two text" {
		t.Errorf("artifact = %q", got)
	}

	prompt := f.chat.last()
	for _, want := range []string{"The storm hits.", "SUMMARY", "previous chapter ending", "the lamp flickered"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("draft prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Dawn") {
		t.Error("draft prompt should only include this chapter's outline")
	}
}

func TestDraft_ServiceErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.chat.failOn = "Write chapter"

	err := f.gen.Draft(context.Background(), domain.ChapterRequest{Number: 1, TotalChapters: 3, WordNumber: 100})
	if err == nil {
		t.Fatal("expected error")
	}
	if ok, _ := f.store.Exists(context.Background(), 1); ok {
		t.Error("no artifact should be written on failure")
	}
}

func TestEnrich_ReturnsRewrite(t *testing.T) {
	f := newFixture(t)
	f.chat.replies["The following chapter"] = "much longer text"

	out, err := f.gen.Enrich(context.Background(), domain.ChapterRequest{Number: 1, WordNumber: 100}, "short")
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if out != "much longer text" {
		t.Errorf("Enrich = %q", out)
	}
	if !strings.Contains(f.chat.last(), "short") {
		t.Error("enrich prompt should carry the draft")
	}
}

func TestFinalize_UpdatesStateAndIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.Write(ctx, 1, "para one\n\npara two")
	f.chat.replies["Update the global story summary"] = "NEW SUMMARY"
	f.chat.replies["Update the character state"] = "NEW STATE"

	req := domain.ChapterRequest{Number: 1, TotalChapters: 3, WordNumber: 100}
	if err := f.gen.Finalize(ctx, req); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	summary, _ := f.story.Read(GlobalSummaryFile)
	state, _ := f.story.Read(CharacterStateFile)
	if summary != "NEW SUMMARY" || state != "NEW STATE" {
		t.Errorf("unexpected state files: %q / %q", summary, state)
	}
	if f.vectors.Len() != 1 {
		t.Errorf("expected 1 passage indexed, got %d", f.vectors.Len())
	}

	// A retried finalize replaces the chapter's passages instead of duplicating them
	if err := f.gen.Finalize(ctx, req); err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}
	if f.vectors.Len() != 1 {
		t.Errorf("expected passages replaced, got %d", f.vectors.Len())
	}
}

func TestFinalize_FailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.Write(ctx, 1, "text")
	_ = f.story.Write(GlobalSummaryFile, "OLD")
	f.chat.failOn = "Update the character state"

	if err := f.gen.Finalize(ctx, domain.ChapterRequest{Number: 1, WordNumber: 100}); err == nil {
		t.Fatal("expected error")
	}
	summary, _ := f.story.Read(GlobalSummaryFile)
	if summary != "OLD" {
		t.Errorf("summary must not change when finalize fails, got %q", summary)
	}
}

func TestChapterOutline(t *testing.T) {
	bp := "Intro line\nChapter 1 - A\nline a\nChapter 10 - J\nline j\n第2章 乙\n内容"
	tests := []struct {
		n    int
		want string
	}{
		{1, "Chapter 1 - A\nline a"},
		{10, "Chapter 10 - J\nline j"},
		{2, "第2章 乙\n内容"},
		{5, ""},
	}
	for _, tt := range tests {
		if got := chapterOutline(bp, tt.n); got != tt.want {
			t.Errorf("chapterOutline(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestChunkText(t *testing.T) {
	text := "aaaa\n\nbbbb\ncc\n" + strings.Repeat("x", 12)
	chunks := chunkText(text, 10)

	want := []string{"aaaa\nbbbb", "cc", "xxxxxxxxxx", "xx"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
	for _, c := range chunks {
		if len([]rune(c)) > 10 {
			t.Errorf("chunk exceeds size: %q", c)
		}
	}
}
