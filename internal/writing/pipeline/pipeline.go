// Package pipeline runs the per-chapter stages: draft, conditional enrich,
// finalize. It never retries on its own; the run loop wraps each call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/artifact"
	"github.com/vietddude/autowriter/internal/telemetry/tracer"
	"github.com/vietddude/autowriter/internal/writing/metrics"
)

// ErrMissingArtifact is returned when the drafter reports success without writing a draft.
var ErrMissingArtifact = errors.New("drafter reported success but wrote no artifact")

// ErrEmptyEnrichment is returned when the enricher produced no text.
var ErrEmptyEnrichment = errors.New("enricher returned empty text")

// Drafter writes the draft artifact for a chapter.
type Drafter interface {
	Draft(ctx context.Context, req domain.ChapterRequest) error
}

// Enricher expands an under-length draft.
type Enricher interface {
	Enrich(ctx context.Context, req domain.ChapterRequest, text string) (string, error)
}

// Finalizer commits a chapter into long-term story state.
type Finalizer interface {
	Finalize(ctx context.Context, req domain.ChapterRequest) error
}

// Config holds pipeline dependencies.
type Config struct {
	Run       domain.RunConfig
	Drafter   Drafter
	Enricher  Enricher
	Finalizer Finalizer
	Artifacts artifact.Store
	Logger    *slog.Logger
}

// Pipeline implements the chapter state machine.
type Pipeline struct {
	cfg           Config
	log           *slog.Logger
	mu            sync.RWMutex
	states        map[int]State
	enrichments   int
	stateCallback func(chapter int, t Transition)
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		log:    log.With("component", "pipeline"),
		states: make(map[int]State),
	}
}

// Draft runs the draft stage for chapter n.
func (p *Pipeline) Draft(ctx context.Context, n int) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline.Draft",
		trace.WithAttributes(attribute.Int("chapter", n)))
	defer func() { endSpan(span, err) }()

	from := p.State(n)
	if err := p.transition(n, StateDraftPending, "draft attempt"); err != nil {
		return err
	}

	req := p.cfg.Run.Request(n)
	if err := p.cfg.Drafter.Draft(ctx, req); err != nil {
		p.revert(n, from, "draft attempt failed")
		return fmt.Errorf("draft chapter %d: %w", n, err)
	}

	ok, err := p.cfg.Artifacts.Exists(ctx, n)
	if err != nil {
		p.revert(n, from, "artifact check failed")
		return fmt.Errorf("draft chapter %d: %w", n, err)
	}
	if !ok {
		p.revert(n, from, "artifact missing")
		return fmt.Errorf("draft chapter %d: %w", n, ErrMissingArtifact)
	}

	p.log.Info("Draft written", "chapter", n)
	return p.transition(n, StateDraftDone, "draft written")
}

// Finalize runs the enrichment check and then the finalize stage for chapter n.
func (p *Pipeline) Finalize(ctx context.Context, n int) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline.Finalize",
		trace.WithAttributes(attribute.Int("chapter", n)))
	defer func() { endSpan(span, err) }()

	if s := p.State(n); s != StateDraftDone {
		return fmt.Errorf("%w: finalize chapter %d from %s", ErrInvalidTransition, n, s)
	}

	req := p.cfg.Run.Request(n)

	if err := p.enrichIfShort(ctx, req); err != nil {
		return err
	}

	if err := p.transition(n, StateFinalizePending, "finalize attempt"); err != nil {
		return err
	}
	if err := p.cfg.Finalizer.Finalize(ctx, req); err != nil {
		p.revert(n, StateDraftDone, "finalize attempt failed")
		return fmt.Errorf("finalize chapter %d: %w", n, err)
	}

	p.log.Info("Chapter finalized", "chapter", n)
	return p.transition(n, StateFinalizeDone, "finalized")
}

// enrichIfShort expands the stored draft when it is below the target length.
func (p *Pipeline) enrichIfShort(ctx context.Context, req domain.ChapterRequest) error {
	n := req.Number

	text, err := p.cfg.Artifacts.Read(ctx, n)
	if err != nil {
		return fmt.Errorf("read draft %d: %w", n, err)
	}

	length := TextLength(text)
	if !NeedsEnrichment(text, req.WordNumber) {
		p.log.Debug("Draft meets target length", "chapter", n, "length", length, "target", req.WordNumber)
		return nil
	}

	ctx, span := tracer.Start(ctx, "pipeline.Enrich",
		trace.WithAttributes(
			attribute.Int("chapter", n),
			attribute.Int("length", length),
			attribute.Int("target", req.WordNumber),
		))
	defer span.End()

	if err := p.transition(n, StateEnrichPending, "draft below target length"); err != nil {
		return err
	}
	p.log.Info("Enriching chapter", "chapter", n, "length", length, "target", req.WordNumber)

	enriched, err := p.cfg.Enricher.Enrich(ctx, req, strings.TrimSpace(text))
	if err == nil && strings.TrimSpace(enriched) == "" {
		err = ErrEmptyEnrichment
	}
	if err != nil {
		span.RecordError(err)
		p.revert(n, StateDraftDone, "enrich attempt failed")
		return fmt.Errorf("enrich chapter %d: %w", n, err)
	}

	if err := p.cfg.Artifacts.Write(ctx, n, enriched); err != nil {
		span.RecordError(err)
		p.revert(n, StateDraftDone, "enriched write failed")
		return fmt.Errorf("write enriched chapter %d: %w", n, err)
	}

	p.mu.Lock()
	p.enrichments++
	p.mu.Unlock()
	metrics.Enrichments.Inc()

	p.log.Info("Enrichment complete", "chapter", n, "length", TextLength(enriched))
	return nil
}

// MarkFailed moves chapter n to Failed after its stage exhausted retries.
func (p *Pipeline) MarkFailed(n int, stage domain.Stage, cause error) {
	reason := fmt.Sprintf("%s retries exhausted", stage)
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", reason, cause)
	}
	if err := p.transition(n, StateFailed, reason); err != nil {
		p.log.Warn("Could not mark chapter failed", "chapter", n, "error", err)
	}
}

// State returns the current state of chapter n.
func (p *Pipeline) State(n int) State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.states[n]; ok {
		return s
	}
	return StateNotStarted
}

// Enrichments returns how many drafts were enriched by this pipeline.
func (p *Pipeline) Enrichments() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enrichments
}

// SetStateChangeCallback registers a callback for state changes.
func (p *Pipeline) SetStateChangeCallback(fn func(chapter int, t Transition)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateCallback = fn
}

func (p *Pipeline) transition(n int, to State, reason string) error {
	p.mu.Lock()
	from, ok := p.states[n]
	if !ok {
		from = StateNotStarted
	}
	t := NewTransition(from, to, reason)
	if !t.IsValid() {
		p.mu.Unlock()
		return fmt.Errorf(
			"%w: chapter %d cannot transition from %s to %s",
			ErrInvalidTransition,
			n,
			from,
			to,
		)
	}
	p.states[n] = to
	cb := p.stateCallback
	p.mu.Unlock()

	metrics.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
	p.log.Debug("Chapter state changed", "chapter", n, "from", from, "to", to, "reason", reason)

	if cb != nil {
		cb(n, t)
	}
	return nil
}

// revert returns chapter n to the state an attempt started from.
func (p *Pipeline) revert(n int, to State, reason string) {
	if err := p.transition(n, to, reason); err != nil {
		p.log.Warn("Could not revert chapter state", "chapter", n, "error", err)
	}
}

// TextLength counts characters of the trimmed text.
func TextLength(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}

// NeedsEnrichment reports whether text is strictly shorter than target.
func NeedsEnrichment(text string, target int) bool {
	return TextLength(text) < target
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
