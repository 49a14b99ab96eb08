package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/core/progress"
	"github.com/vietddude/autowriter/internal/core/retry"
	"github.com/vietddude/autowriter/internal/infra/artifact"
	"github.com/vietddude/autowriter/internal/infra/storage/memory"
	"github.com/vietddude/autowriter/internal/writing/pipeline"
	"github.com/vietddude/autowriter/internal/writing/recovery"
)

// =============================================================================
// Test Doubles
// =============================================================================

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeTimer) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (f *fakeTimer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waits)
}

// recordingRepo records every persisted next_chapter in order.
type recordingRepo struct {
	*memory.ProgressRepo
	mu      sync.Mutex
	saved   []int
	saveErr error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{ProgressRepo: memory.NewProgressRepo(memory.NewMemoryStorage())}
}

func (r *recordingRepo) Save(ctx context.Context, rec *domain.ProgressRecord) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	r.saved = append(r.saved, rec.NextChapter)
	r.mu.Unlock()
	return r.ProgressRepo.Save(ctx, rec)
}

func (r *recordingRepo) persisted() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.saved...)
}

// scriptedDrafter writes a draft unless the chapter is scripted to fail.
// failures[n] < 0 means always fail; otherwise fail that many times first.
type scriptedDrafter struct {
	store    artifact.Store
	failures map[int]int
	onCall   func(n int)

	mu    sync.Mutex
	calls map[int]int
	order []int
}

func (d *scriptedDrafter) Draft(ctx context.Context, req domain.ChapterRequest) error {
	n := req.Number
	d.mu.Lock()
	if d.calls == nil {
		d.calls = make(map[int]int)
	}
	d.calls[n]++
	call := d.calls[n]
	d.order = append(d.order, n)
	d.mu.Unlock()

	if d.onCall != nil {
		d.onCall(n)
	}
	if f, ok := d.failures[n]; ok && (f < 0 || call <= f) {
		return fmt.Errorf("upstream unavailable (chapter %d, call %d)", n, call)
	}
	return d.store.Write(ctx, n, strings.Repeat("字", req.WordNumber))
}

func (d *scriptedDrafter) callsFor(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[n]
}

func (d *scriptedDrafter) first() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.order) == 0 {
		return 0
	}
	return d.order[0]
}

type passEnricher struct{}

func (passEnricher) Enrich(ctx context.Context, req domain.ChapterRequest, text string) (string, error) {
	return text, nil
}

type scriptedFinalizer struct {
	failures map[int]int
	mu       sync.Mutex
	calls    map[int]int
}

func (f *scriptedFinalizer) Finalize(ctx context.Context, req domain.ChapterRequest) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[int]int)
	}
	f.calls[req.Number]++
	call := f.calls[req.Number]
	f.mu.Unlock()

	if n, ok := f.failures[req.Number]; ok && (n < 0 || call <= n) {
		return errors.New("summary update failed")
	}
	return nil
}

type harness struct {
	repo      *recordingRepo
	failed    *memory.FailedRepo
	drafter   *scriptedDrafter
	finalizer *scriptedFinalizer
	pipe      *pipeline.Pipeline
	timer     *fakeTimer
	runner    *Runner
}

func newHarness(total, maxRetries int) *harness {
	return newHarnessWithRepo(total, maxRetries, newRecordingRepo())
}

func newHarnessWithRepo(total, maxRetries int, repo *recordingRepo) *harness {
	run := domain.RunConfig{
		Project:       "novel",
		TotalChapters: total,
		WordNumber:    20,
		MaxRetries:    maxRetries,
		RetryDelay:    30 * time.Second,
	}
	store := artifact.NewMemoryStore()
	h := &harness{
		repo:      repo,
		failed:    memory.NewFailedRepo(memory.NewMemoryStorage()),
		drafter:   &scriptedDrafter{store: store, failures: map[int]int{}},
		finalizer: &scriptedFinalizer{failures: map[int]int{}},
		timer:     &fakeTimer{},
	}
	h.pipe = pipeline.New(pipeline.Config{
		Run:       run,
		Drafter:   h.drafter,
		Enricher:  passEnricher{},
		Finalizer: h.finalizer,
		Artifacts: store,
		Logger:    discard,
	})
	h.runner = New(Config{
		Run:      run,
		Progress: progress.NewManager(repo, run.Project, total),
		Pipeline: h.pipe,
		Executor: retry.NewExecutor(retry.WithTimer(h.timer), retry.WithLogger(discard)),
		Ledger:   recovery.NewLedger(h.failed, run.Project, discard),
		Logger:   discard,
	})
	return h
}

// =============================================================================
// Run Loop Tests
// =============================================================================

func TestRun_Scenario(t *testing.T) {
	h := newHarness(3, 2)
	h.drafter.failures[2] = -1

	report, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := h.drafter.callsFor(2); got != 3 {
		t.Errorf("chapter 2 draft attempts = %d, want 3", got)
	}
	if got := h.repo.persisted(); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Errorf("persisted sequence = %v, want [2 4]", got)
	}
	if !reflect.DeepEqual(report.Finalized, []int{1, 3}) {
		t.Errorf("finalized = %v, want [1 3]", report.Finalized)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("expected 1 skipped chapter, got %+v", report.Skipped)
	}
	sk := report.Skipped[0]
	if sk.Chapter != 2 || sk.Stage != domain.StageDraft || sk.Attempts != 3 {
		t.Errorf("unexpected skip record: %+v", sk)
	}
	if report.Checkpoint != 4 || !report.Complete() {
		t.Errorf("checkpoint = %d, complete = %v", report.Checkpoint, report.Complete())
	}
	if s := h.pipe.State(2); s != pipeline.StateFailed {
		t.Errorf("chapter 2 state = %s, want failed", s)
	}
	if h.finalizer.calls[2] != 0 {
		t.Error("finalize must not run for a chapter whose draft failed")
	}

	pending, _ := h.failed.GetPending(context.Background(), "novel")
	if len(pending) != 1 || pending[0].Chapter != 2 {
		t.Errorf("expected ledger entry for chapter 2, got %+v", pending)
	}
}

func TestRun_SkipDoesNotAdvanceCheckpoint(t *testing.T) {
	h := newHarness(3, 1)
	h.drafter.failures[3] = -1

	report, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := h.repo.persisted(); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("persisted sequence = %v, want [2 3]", got)
	}
	if report.Complete() {
		t.Error("run with a skipped final chapter is not complete")
	}
	if !reflect.DeepEqual(report.SkippedNumbers(), []int{3}) {
		t.Errorf("skipped = %v, want [3]", report.SkippedNumbers())
	}
}

func TestRun_ResumeFromCheckpoint(t *testing.T) {
	repo := newRecordingRepo()
	_ = repo.ProgressRepo.Save(context.Background(), &domain.ProgressRecord{
		Project:       "novel",
		NextChapter:   3,
		TotalChapters: 5,
	})
	h := newHarnessWithRepo(5, 0, repo)

	report, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if first := h.drafter.first(); first != 3 {
		t.Errorf("first drafted chapter = %d, want 3", first)
	}
	for _, n := range repo.persisted() {
		if n < 3 {
			t.Errorf("persisted %d below resumed checkpoint 3", n)
		}
	}
	if !reflect.DeepEqual(repo.persisted(), []int{4, 5, 6}) {
		t.Errorf("persisted sequence = %v, want [4 5 6]", repo.persisted())
	}
	if report.StartChapter != 3 {
		t.Errorf("report start = %d, want 3", report.StartChapter)
	}
}

func TestRun_FinalizeFailureKeptAsDraft(t *testing.T) {
	h := newHarness(2, 1)
	h.finalizer.failures[1] = -1

	report, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if h.finalizer.calls[1] != 2 {
		t.Errorf("chapter 1 finalize attempts = %d, want 2", h.finalizer.calls[1])
	}
	if got := h.repo.persisted(); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("persisted sequence = %v, want [3]", got)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Stage != domain.StageFinalize {
		t.Errorf("expected finalize skip, got %+v", report.Skipped)
	}
}

func TestRun_TransientFailureRecovers(t *testing.T) {
	h := newHarness(1, 30)
	h.drafter.failures[1] = 2

	report, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := h.drafter.callsFor(1); got != 3 {
		t.Errorf("draft attempts = %d, want 3", got)
	}
	if got := h.timer.count(); got != 2 {
		t.Errorf("delays = %d, want 2", got)
	}
	if len(report.Skipped) != 0 || !report.Complete() {
		t.Errorf("expected clean completion, got %+v", report)
	}
}

func TestRun_SaveFailureStopsRun(t *testing.T) {
	repo := newRecordingRepo()
	repo.saveErr = errors.New("disk full")
	h := newHarnessWithRepo(3, 0, repo)

	_, err := h.runner.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected save error, got %v", err)
	}
	if h.drafter.callsFor(2) != 0 {
		t.Error("loop must stop after a failed checkpoint write")
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(3, 5)
	h.drafter.failures[2] = -1
	h.drafter.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	_, err := h.runner.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := h.repo.persisted(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("persisted sequence = %v, want [2]", got)
	}
	if h.drafter.callsFor(3) != 0 {
		t.Error("no chapter should start after cancellation")
	}
	pending, _ := h.failed.GetPending(context.Background(), "novel")
	if len(pending) != 0 {
		t.Errorf("cancelled chapter must not be recorded as skipped, got %+v", pending)
	}
}

func TestRun_AlreadyComplete(t *testing.T) {
	repo := newRecordingRepo()
	_ = repo.ProgressRepo.Save(context.Background(), &domain.ProgressRecord{
		Project:     "novel",
		NextChapter: 4,
	})
	h := newHarnessWithRepo(3, 0, repo)

	report, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if h.drafter.first() != 0 {
		t.Error("no chapter should be drafted")
	}
	if !report.Complete() {
		t.Error("expected complete report")
	}
}

func TestRun_LaterRunResolvesLedger(t *testing.T) {
	repo := newRecordingRepo()
	h := newHarnessWithRepo(2, 0, repo)
	h.drafter.failures[2] = -1

	if _, err := h.runner.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	pending, _ := h.failed.GetPending(context.Background(), "novel")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending entry, got %d", len(pending))
	}

	// Second process: same stores, the chapter now drafts cleanly.
	second := newHarnessWithRepo(2, 0, repo)
	second.failed = h.failed
	second.runner.cfg.Ledger = recovery.NewLedger(h.failed, "novel", discard)

	report, err := second.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if report.StartChapter != 2 || !report.Complete() {
		t.Errorf("unexpected second report: %+v", report)
	}
	pending, _ = h.failed.GetPending(context.Background(), "novel")
	if len(pending) != 0 {
		t.Errorf("expected ledger entry resolved, got %+v", pending)
	}
}

func TestRunner_Status(t *testing.T) {
	h := newHarness(2, 0)
	h.drafter.failures[2] = -1

	if _, err := h.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	st := h.runner.Status()
	if st.Running {
		t.Error("runner should not report running after Run returns")
	}
	if st.Current != 2 || st.State != pipeline.StateFailed {
		t.Errorf("unexpected current: %d %s", st.Current, st.State)
	}
	if st.Checkpoint != 2 || st.Total != 2 {
		t.Errorf("unexpected checkpoint/total: %d/%d", st.Checkpoint, st.Total)
	}
	if !reflect.DeepEqual(st.Finalized, []int{1}) || len(st.Skipped) != 1 {
		t.Errorf("unexpected lists: %v %+v", st.Finalized, st.Skipped)
	}
}
