package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/artifact"
)

// =============================================================================
// Stubs
// =============================================================================

type stubDrafter struct {
	store artifact.Store
	text  string
	err   error
	skip  bool // report success without writing
	calls int
}

func (d *stubDrafter) Draft(ctx context.Context, req domain.ChapterRequest) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	if d.skip {
		return nil
	}
	return d.store.Write(ctx, req.Number, d.text)
}

type stubEnricher struct {
	out   string
	err   error
	calls int
	seen  string
}

func (e *stubEnricher) Enrich(ctx context.Context, req domain.ChapterRequest, text string) (string, error) {
	e.calls++
	e.seen = text
	return e.out, e.err
}

type stubFinalizer struct {
	errs  []error
	calls int
}

func (f *stubFinalizer) Finalize(ctx context.Context, req domain.ChapterRequest) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

type fixture struct {
	store     *artifact.MemoryStore
	drafter   *stubDrafter
	enricher  *stubEnricher
	finalizer *stubFinalizer
	pipe      *Pipeline
}

func newFixture(wordNumber int, draft string) *fixture {
	store := artifact.NewMemoryStore()
	f := &fixture{
		store:     store,
		drafter:   &stubDrafter{store: store, text: draft},
		enricher:  &stubEnricher{out: strings.Repeat("长", wordNumber)},
		finalizer: &stubFinalizer{},
	}
	f.pipe = New(Config{
		Run:       domain.RunConfig{TotalChapters: 3, WordNumber: wordNumber},
		Drafter:   f.drafter,
		Enricher:  f.enricher,
		Finalizer: f.finalizer,
		Artifacts: store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{"start draft", StateNotStarted, StateDraftPending, true},
		{"draft ok", StateDraftPending, StateDraftDone, true},
		{"draft attempt failed", StateDraftPending, StateNotStarted, true},
		{"enrich", StateDraftDone, StateEnrichPending, true},
		{"finalize without enrich", StateDraftDone, StateFinalizePending, true},
		{"finalize after enrich", StateEnrichPending, StateFinalizePending, true},
		{"finalize ok", StateFinalizePending, StateFinalizeDone, true},
		{"exhausted draft", StateNotStarted, StateFailed, true},
		{"exhausted finalize", StateDraftDone, StateFailed, true},
		{"skip draft", StateNotStarted, StateDraftDone, false},
		{"skip to done", StateDraftDone, StateFinalizeDone, false},
		{"done is terminal", StateFinalizeDone, StateDraftPending, false},
		{"failed to done", StateFailed, StateFinalizeDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestStateDescription(t *testing.T) {
	for from := range ValidTransitions {
		if StateDescription(from) == "Unknown state" {
			t.Errorf("missing description for %s", from)
		}
	}
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestDraft_Success(t *testing.T) {
	f := newFixture(5, "draft text")

	if err := f.pipe.Draft(context.Background(), 1); err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if s := f.pipe.State(1); s != StateDraftDone {
		t.Errorf("expected DraftDone, got %s", s)
	}
}

func TestDraft_FailureReverts(t *testing.T) {
	f := newFixture(5, "draft text")
	f.drafter.err = errors.New("upstream 502")

	if err := f.pipe.Draft(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if s := f.pipe.State(1); s != StateNotStarted {
		t.Errorf("failed attempt should leave NotStarted, got %s", s)
	}

	// Next attempt is allowed
	f.drafter.err = nil
	if err := f.pipe.Draft(context.Background(), 1); err != nil {
		t.Fatalf("retry attempt failed: %v", err)
	}
}

func TestDraft_MissingArtifact(t *testing.T) {
	f := newFixture(5, "draft text")
	f.drafter.skip = true

	err := f.pipe.Draft(context.Background(), 2)
	if !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("expected ErrMissingArtifact, got %v", err)
	}
}

func TestFinalize_RequiresDraft(t *testing.T) {
	f := newFixture(5, "draft text")

	err := f.pipe.Finalize(context.Background(), 1)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if f.finalizer.calls != 0 {
		t.Error("finalizer must not run without a draft")
	}
}

func TestFinalize_EnrichmentTrigger(t *testing.T) {
	tests := []struct {
		name       string
		draft      string
		target     int
		wantEnrich bool
	}{
		{"shorter than target", "abc", 4, true},
		{"equal to target", "abcd", 4, false},
		{"longer than target", "abcdef", 4, false},
		{"whitespace is trimmed", "  ab \n\n", 3, true},
		{"counts characters not bytes", "第一章开头", 5, false},
		{"multibyte short", "第一章", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.target, tt.draft)
			ctx := context.Background()

			if err := f.pipe.Draft(ctx, 1); err != nil {
				t.Fatalf("Draft failed: %v", err)
			}
			if err := f.pipe.Finalize(ctx, 1); err != nil {
				t.Fatalf("Finalize failed: %v", err)
			}

			if got := f.enricher.calls == 1; got != tt.wantEnrich {
				t.Errorf("enricher called = %v, want %v", got, tt.wantEnrich)
			}
			if s := f.pipe.State(1); s != StateFinalizeDone {
				t.Errorf("expected FinalizeDone, got %s", s)
			}
		})
	}
}

func TestFinalize_EnrichmentReplacesArtifact(t *testing.T) {
	f := newFixture(10, "short")
	f.enricher.out = "an entirely new and longer chapter"
	ctx := context.Background()

	_ = f.pipe.Draft(ctx, 1)
	if err := f.pipe.Finalize(ctx, 1); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	got, _ := f.store.Read(ctx, 1)
	if got != "an entirely new and longer chapter" {
		t.Errorf("artifact should be fully replaced, got %q", got)
	}
	if strings.Contains(got, "short") {
		t.Error("old content must not be concatenated")
	}
	if f.enricher.seen != "short" {
		t.Errorf("enricher should receive the stored draft, got %q", f.enricher.seen)
	}
	if f.pipe.Enrichments() != 1 {
		t.Errorf("expected 1 enrichment, got %d", f.pipe.Enrichments())
	}
}

func TestFinalize_EnrichFailureKeepsDraft(t *testing.T) {
	f := newFixture(10, "short")
	f.enricher.err = errors.New("rate limited")
	ctx := context.Background()

	_ = f.pipe.Draft(ctx, 1)
	if err := f.pipe.Finalize(ctx, 1); err == nil {
		t.Fatal("expected error")
	}

	got, _ := f.store.Read(ctx, 1)
	if got != "short" {
		t.Errorf("draft must be untouched after failed enrichment, got %q", got)
	}
	if s := f.pipe.State(1); s != StateDraftDone {
		t.Errorf("expected DraftDone, got %s", s)
	}
	if f.finalizer.calls != 0 {
		t.Error("finalizer must not run when enrichment fails")
	}
}

func TestFinalize_EmptyEnrichmentRejected(t *testing.T) {
	f := newFixture(10, "short")
	f.enricher.out = "   "
	ctx := context.Background()

	_ = f.pipe.Draft(ctx, 1)
	err := f.pipe.Finalize(ctx, 1)
	if !errors.Is(err, ErrEmptyEnrichment) {
		t.Errorf("expected ErrEmptyEnrichment, got %v", err)
	}
	got, _ := f.store.Read(ctx, 1)
	if got != "short" {
		t.Errorf("draft must survive empty enrichment, got %q", got)
	}
}

func TestFinalize_RetryAfterFailureSkipsEnrichment(t *testing.T) {
	f := newFixture(10, "short")
	f.finalizer.errs = []error{errors.New("timeout")}
	ctx := context.Background()

	_ = f.pipe.Draft(ctx, 1)
	if err := f.pipe.Finalize(ctx, 1); err == nil {
		t.Fatal("expected first finalize attempt to fail")
	}
	if s := f.pipe.State(1); s != StateDraftDone {
		t.Fatalf("expected DraftDone after failed finalize, got %s", s)
	}

	if err := f.pipe.Finalize(ctx, 1); err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if f.enricher.calls != 1 {
		t.Errorf("enriched artifact already meets target, enricher calls = %d", f.enricher.calls)
	}
	if f.store.Writes(1) != 2 {
		t.Errorf("expected draft + one enrichment write, got %d", f.store.Writes(1))
	}
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(5, "draft")

	var seen []Transition
	f.pipe.SetStateChangeCallback(func(chapter int, tr Transition) {
		seen = append(seen, tr)
	})

	f.pipe.MarkFailed(2, domain.StageDraft, errors.New("boom"))
	if s := f.pipe.State(2); s != StateFailed {
		t.Errorf("expected Failed, got %s", s)
	}
	if len(seen) != 1 || seen[0].From != StateNotStarted || seen[0].To != StateFailed {
		t.Errorf("unexpected transitions: %+v", seen)
	}
	if !strings.Contains(seen[0].Reason, "draft") {
		t.Errorf("reason should name the stage, got %q", seen[0].Reason)
	}
}

func TestMarkFailed_FinalizedChapterUnchanged(t *testing.T) {
	f := newFixture(5, "draft text")
	ctx := context.Background()

	if err := f.pipe.Draft(ctx, 1); err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if err := f.pipe.Finalize(ctx, 1); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	var seen []Transition
	f.pipe.SetStateChangeCallback(func(chapter int, tr Transition) {
		seen = append(seen, tr)
	})

	f.pipe.MarkFailed(1, domain.StageFinalize, errors.New("late"))
	if s := f.pipe.State(1); s != StateFinalizeDone {
		t.Errorf("finalized chapter must stay finalized, got %s", s)
	}
	if len(seen) != 0 {
		t.Errorf("rejected transition must not be reported: %+v", seen)
	}
}

func TestNeedsEnrichment(t *testing.T) {
	if !NeedsEnrichment("", 1) {
		t.Error("empty text is below any positive target")
	}
	if NeedsEnrichment("abc", 0) {
		t.Error("zero target never triggers enrichment")
	}
}
