package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/autowriter/internal/core/config"
	redisclient "github.com/vietddude/autowriter/internal/infra/redis"
	"github.com/vietddude/autowriter/internal/infra/storage"
	"github.com/vietddude/autowriter/internal/infra/storage/file"
	"github.com/vietddude/autowriter/internal/infra/storage/memory"
	"github.com/vietddude/autowriter/internal/infra/storage/postgres"
)

// Stores bundles the checkpoint and failed-chapter repositories of one backend.
type Stores struct {
	Progress storage.ProgressRepository
	Failed   storage.FailedChapterRepository

	db          *postgres.DB
	redisClient *redisclient.Client
}

// OpenStores connects the configured progress backend.
func OpenStores(ctx context.Context, cfg *config.AppConfig) (*Stores, error) {
	s := &Stores{}

	switch cfg.Progress.Backend {
	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		s.db = db
		s.Progress = postgres.NewProgressRepo(db)
		s.Failed = postgres.NewFailedChapterRepo(db)
		slog.Info("Using PostgreSQL progress storage")

	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.redisClient = client
		s.Progress = redisclient.NewProgressRepo(client)
		s.Failed = redisclient.NewFailedChapterRepo(client)
		slog.Info("Using Redis progress storage")

	case config.BackendMemory:
		store := memory.NewMemoryStorage()
		s.Progress = memory.NewProgressRepo(store)
		s.Failed = memory.NewFailedRepo(store)
		slog.Warn("Using memory progress storage, the checkpoint will not survive a restart")

	case config.BackendFile:
		store, err := file.NewStorage(cfg.Progress.Dir)
		if err != nil {
			return nil, err
		}
		s.Progress = file.NewProgressRepo(store)
		s.Failed = file.NewFailedRepo(store)
		slog.Info("Using file progress storage", "dir", cfg.Progress.Dir)

	default:
		return nil, fmt.Errorf("unknown progress backend %q", cfg.Progress.Backend)
	}

	return s, nil
}

// StartMetricsCollector starts backend metrics collection when supported.
func (s *Stores) StartMetricsCollector(ctx context.Context) {
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
}

// Health pings the network backend. Memory and file stores are always healthy.
func (s *Stores) Health(ctx context.Context) error {
	switch {
	case s.db != nil:
		return s.db.Health(ctx)
	case s.redisClient != nil:
		return s.redisClient.Health(ctx)
	}
	return nil
}

// Close releases backend connections.
func (s *Stores) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}
	return errors.Join(errs...)
}
