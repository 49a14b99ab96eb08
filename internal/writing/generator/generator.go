// Package generator is the OpenAI-compatible implementation of the chapter
// stages: it drafts chapters, expands short drafts and folds finalized
// chapters into the long-term story state and the vector index.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/artifact"
	"github.com/vietddude/autowriter/internal/infra/llm"
	"github.com/vietddude/autowriter/internal/infra/vector"
)

const (
	passageSize   = 500
	previousRunes = 1500
)

// Chat completes a prompt.
type Chat interface {
	Complete(ctx context.Context, msg llm.Message) (string, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds generator dependencies.
type Config struct {
	Run       domain.RunConfig
	Chat      Chat
	Embedder  Embedder // optional, retrieval is skipped when nil
	Vectors   vector.Store
	Artifacts artifact.Store
	Story     *StoryFiles
	Logger    *slog.Logger
}

// Generator implements pipeline.Drafter, pipeline.Enricher and pipeline.Finalizer.
type Generator struct {
	cfg Config
	log *slog.Logger
}

// New creates a generator.
func New(cfg Config) *Generator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Vectors == nil {
		cfg.Vectors = vector.Nop{}
	}
	return &Generator{cfg: cfg, log: log.With("component", "generator")}
}

// Plan writes the novel architecture and the chapter blueprint.
func (g *Generator) Plan(ctx context.Context, overwrite bool) error {
	architecture, err := g.cfg.Story.Read(ArchitectureFile)
	if err != nil {
		return err
	}
	if architecture == "" || overwrite {
		g.log.Info("Generating novel architecture")
		architecture, err = g.complete(ctx, architecturePrompt(g.cfg.Run))
		if err != nil {
			return fmt.Errorf("generate architecture: %w", err)
		}
		if err := g.cfg.Story.Write(ArchitectureFile, architecture); err != nil {
			return err
		}
	}

	blueprint, err := g.cfg.Story.Read(DirectoryFile)
	if err != nil {
		return err
	}
	if blueprint != "" && !overwrite {
		g.log.Info("Chapter blueprint already present")
		return nil
	}

	g.log.Info("Generating chapter blueprint", "chapters", g.cfg.Run.TotalChapters)
	blueprint, err = g.complete(ctx, blueprintPrompt(g.cfg.Run, architecture))
	if err != nil {
		return fmt.Errorf("generate blueprint: %w", err)
	}
	return g.cfg.Story.Write(DirectoryFile, blueprint)
}

// Draft writes a fresh draft for the requested chapter, overwriting any
// earlier artifact.
func (g *Generator) Draft(ctx context.Context, req domain.ChapterRequest) error {
	dc, err := g.draftContext(ctx, req)
	if err != nil {
		return err
	}

	text, err := g.complete(ctx, draftPrompt(req, dc))
	if err != nil {
		return err
	}
	return g.cfg.Artifacts.Write(ctx, req.Number, text)
}

// Enrich returns an expanded rewrite of text.
func (g *Generator) Enrich(ctx context.Context, req domain.ChapterRequest, text string) (string, error) {
	return g.complete(ctx, enrichPrompt(req, text))
}

// Finalize folds the chapter into the summary, the character state and the
// vector index. Both state updates are computed before either is written.
func (g *Generator) Finalize(ctx context.Context, req domain.ChapterRequest) error {
	n := req.Number
	text, err := g.cfg.Artifacts.Read(ctx, n)
	if err != nil {
		return err
	}

	summary, err := g.cfg.Story.Read(GlobalSummaryFile)
	if err != nil {
		return err
	}
	characters, err := g.cfg.Story.Read(CharacterStateFile)
	if err != nil {
		return err
	}

	newSummary, err := g.complete(ctx, summaryPrompt(req, summary, text))
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	newCharacters, err := g.complete(ctx, characterPrompt(req, characters, text))
	if err != nil {
		return fmt.Errorf("update character state: %w", err)
	}

	if err := g.index(ctx, n, text); err != nil {
		return err
	}

	if err := g.cfg.Story.Write(GlobalSummaryFile, newSummary); err != nil {
		return err
	}
	return g.cfg.Story.Write(CharacterStateFile, newCharacters)
}

// index replaces the chapter's passages in the vector store.
func (g *Generator) index(ctx context.Context, n int, text string) error {
	if g.cfg.Embedder == nil {
		return nil
	}
	chunks := chunkText(text, passageSize)
	if len(chunks) == 0 {
		return nil
	}

	vecs, err := g.cfg.Embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chapter %d: %w", n, err)
	}

	passages := make([]vector.Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = vector.Passage{
			ID:      fmt.Sprintf("ch%d-%d", n, i),
			Chapter: n,
			Text:    c,
			Vector:  vecs[i],
		}
	}

	if err := g.cfg.Vectors.DeleteChapter(ctx, n); err != nil {
		return err
	}
	if err := g.cfg.Vectors.Upsert(ctx, passages); err != nil {
		return err
	}
	g.log.Debug("Indexed chapter", "chapter", n, "passages", len(passages))
	return nil
}

func (g *Generator) draftContext(ctx context.Context, req domain.ChapterRequest) (draftContext, error) {
	var dc draftContext
	var err error

	if dc.Architecture, err = g.cfg.Story.Read(ArchitectureFile); err != nil {
		return dc, err
	}
	blueprint, err := g.cfg.Story.Read(DirectoryFile)
	if err != nil {
		return dc, err
	}
	dc.Outline = chapterOutline(blueprint, req.Number)
	if dc.Summary, err = g.cfg.Story.Read(GlobalSummaryFile); err != nil {
		return dc, err
	}
	if dc.Characters, err = g.cfg.Story.Read(CharacterStateFile); err != nil {
		return dc, err
	}

	if req.Number > 1 {
		prev, err := g.cfg.Artifacts.Read(ctx, req.Number-1)
		switch {
		case errors.Is(err, artifact.ErrArtifactNotFound):
		case err != nil:
			return dc, err
		default:
			dc.Previous = tail(prev, previousRunes)
		}
	}

	dc.Passages, err = g.retrieve(ctx, req, dc.Outline)
	return dc, err
}

// retrieve returns up to RetrievalK passages related to the chapter plan.
func (g *Generator) retrieve(ctx context.Context, req domain.ChapterRequest, outline string) ([]string, error) {
	k := g.cfg.Run.RetrievalK
	if g.cfg.Embedder == nil || k <= 0 || req.Number == 1 {
		return nil, nil
	}

	query := outline
	if query == "" {
		query = fmt.Sprintf("Chapter %d. %s %s", req.Number, req.Params.CharactersInvolved, req.Params.SceneLocation)
	}

	vecs, err := g.cfg.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	hits, err := g.cfg.Vectors.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Text)
	}
	return out, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	return g.cfg.Chat.Complete(ctx, llm.Message{System: systemPrompt, User: prompt})
}
