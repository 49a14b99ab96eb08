// Package control wires configuration into a runnable application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/autowriter/internal/core/config"
	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/core/progress"
	"github.com/vietddude/autowriter/internal/core/retry"
	"github.com/vietddude/autowriter/internal/infra/artifact"
	"github.com/vietddude/autowriter/internal/infra/llm"
	"github.com/vietddude/autowriter/internal/infra/vector"
	"github.com/vietddude/autowriter/internal/writing/generator"
	"github.com/vietddude/autowriter/internal/writing/health"
	"github.com/vietddude/autowriter/internal/writing/metrics"
	"github.com/vietddude/autowriter/internal/writing/pipeline"
	"github.com/vietddude/autowriter/internal/writing/recovery"
	"github.com/vietddude/autowriter/internal/writing/runner"
)

const shutdownTimeout = 5 * time.Second

// App is the main application struct that manages the run lifecycle.
type App struct {
	cfg          *config.AppConfig
	run          domain.RunConfig
	stores       *Stores
	artifacts    artifact.Store
	vectors      vector.Store
	generator    *generator.Generator
	progress     *progress.Manager
	pipeline     *pipeline.Pipeline
	runner       *runner.Runner
	healthServer *health.Server
	log          *slog.Logger
}

// Deps overrides parts of the default wiring.
type Deps struct {
	Stores    *Stores
	Artifacts artifact.Store
	Vectors   vector.Store
	Chat      generator.Chat
	Embedder  generator.Embedder
	Timer     retry.Timer
}

// NewApp builds the application from configuration. Non-nil fields in deps
// replace the components that would otherwise be built from cfg.
func NewApp(ctx context.Context, cfg *config.AppConfig, deps Deps) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	run := cfg.RunConfig()
	log := slog.Default()

	a := &App{cfg: cfg, run: run, log: log}

	// 1. Progress storage
	a.stores = deps.Stores
	if a.stores == nil {
		stores, err := OpenStores(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.stores = stores
	}

	var err error
	fail := func(e error) (*App, error) {
		_ = a.Close()
		return nil, e
	}

	// 2. Artifacts
	a.artifacts = deps.Artifacts
	if a.artifacts == nil {
		if a.artifacts, err = openArtifacts(ctx, cfg); err != nil {
			return fail(err)
		}
	}

	// 3. Vector index
	a.vectors = deps.Vectors
	if a.vectors == nil {
		if a.vectors, err = openVectors(ctx, cfg); err != nil {
			return fail(err)
		}
	}

	// 4. Generation service
	chat := deps.Chat
	if chat == nil {
		client := llm.NewChatClient(run.LLM, nil)
		log.Info("Using chat model", "model", client.Model())
		chat = client
	}
	embed := deps.Embedder
	if embed == nil && cfg.Embedding.Enabled {
		embed = llm.NewEmbedder(run.Embedding, nil)
	}

	story, err := generator.NewStoryFiles(run.OutputDir)
	if err != nil {
		return fail(err)
	}
	a.generator = generator.New(generator.Config{
		Run:       run,
		Chat:      chat,
		Embedder:  embed,
		Vectors:   a.vectors,
		Artifacts: a.artifacts,
		Story:     story,
		Logger:    log,
	})

	// 5. Pipeline and run loop
	a.progress = progress.NewManager(a.stores.Progress, run.Project, run.TotalChapters)
	a.progress.SetSaveCallback(func(rec progress.Record) {
		m := a.progress.GetMetrics()
		log.Debug("Checkpoint saved",
			"next_chapter", rec.NextChapter,
			"chapters_per_hour", m.ChaptersPerHour,
		)
	})

	a.pipeline = pipeline.New(pipeline.Config{
		Run:       run,
		Drafter:   a.generator,
		Enricher:  a.generator,
		Finalizer: a.generator,
		Artifacts: a.artifacts,
		Logger:    log,
	})

	execOpts := []retry.Option{
		retry.WithLogger(log),
		retry.WithObserver(metrics.ObserveAttempt),
	}
	if deps.Timer != nil {
		execOpts = append(execOpts, retry.WithTimer(deps.Timer))
	}

	ledger := recovery.NewLedger(a.stores.Failed, run.Project, log)
	a.runner = runner.New(runner.Config{
		Run:      run,
		Progress: a.progress,
		Pipeline: a.pipeline,
		Executor: retry.NewExecutor(execOpts...),
		Ledger:   ledger,
		Logger:   log,
	})

	// 6. Status server
	if cfg.Server.Port > 0 {
		monitor := health.NewMonitor(run.Project, a.runner, a.stores.Failed)
		a.healthServer = health.NewServer(monitor, cfg.Server.Port)
	}

	return a, nil
}

// Run produces chapters until the book is done, the context is cancelled or
// a checkpoint write fails. The status server runs alongside the loop.
func (a *App) Run(ctx context.Context) (*runner.Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	a.stores.StartMetricsCollector(runCtx)

	if a.healthServer != nil {
		g.Go(func() error {
			a.log.Info("Status server listening", "port", a.cfg.Server.Port)
			if err := a.healthServer.Start(); err != nil {
				a.log.Error("Status server failed", "error", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.healthServer.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("Status server shutdown failed", "error", err)
			}
			return nil
		})
	}

	var report *runner.Report
	g.Go(func() error {
		defer stop()
		var err error
		report, err = a.runner.Run(runCtx)
		return err
	})

	err := g.Wait()
	return report, err
}

// Plan generates the novel architecture and chapter blueprint.
func (a *App) Plan(ctx context.Context, overwrite bool) error {
	return a.generator.Plan(ctx, overwrite)
}

// Runner exposes the run loop for status reads.
func (a *App) Runner() *runner.Runner {
	return a.runner
}

// Close releases all connections.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.vectors.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if a.stores != nil {
		errs = append(errs, a.stores.Close())
	}
	return errors.Join(errs...)
}

func openArtifacts(ctx context.Context, cfg *config.AppConfig) (artifact.Store, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendS3:
		store, err := artifact.NewS3Store(ctx, cfg.Artifacts.S3)
		if err != nil {
			return nil, err
		}
		slog.Info("Using S3 artifact storage", "bucket", cfg.Artifacts.S3.Bucket)
		return store, nil
	default:
		return artifact.NewFileStore(cfg.Novel.OutputDir)
	}
}

func openVectors(ctx context.Context, cfg *config.AppConfig) (vector.Store, error) {
	if !cfg.Embedding.Enabled {
		return vector.Nop{}, nil
	}
	switch cfg.Vector.Backend {
	case config.BackendMilvus:
		store, err := vector.NewMilvusStore(ctx, cfg.Vector.Milvus, cfg.Novel.Project)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Milvus vector index", "address", cfg.Vector.Milvus.Address)
		return store, nil
	case config.BackendNone:
		return vector.Nop{}, nil
	default:
		return vector.NewMemoryStore(), nil
	}
}
