package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/infra/storage"
)

// Client wraps the Redis connection shared by the progress and ledger repos.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "autowriter"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) progressKey(project string) string {
	return fmt.Sprintf("%s:progress:%s", c.prefix, project)
}

// ProgressRepo implements storage.ProgressRepository as one hash per project.
type ProgressRepo struct {
	client *Client
}

// NewProgressRepo creates a Redis-backed progress repository.
func NewProgressRepo(client *Client) *ProgressRepo {
	return &ProgressRepo{client: client}
}

// Get retrieves the checkpoint for a project.
func (r *ProgressRepo) Get(ctx context.Context, project string) (*domain.ProgressRecord, error) {
	vals, err := r.client.rdb.HGetAll(ctx, r.client.progressKey(project)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(vals) == 0 {
		return nil, storage.ErrProgressNotFound
	}
	return parseProgress(project, vals)
}

// Save replaces the checkpoint for a project in a single HSET.
func (r *ProgressRepo) Save(ctx context.Context, record *domain.ProgressRecord) error {
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	err := r.client.rdb.HSet(ctx, r.client.progressKey(record.Project),
		"next_chapter", record.NextChapter,
		"total_chapters", record.TotalChapters,
		"updated_at", updatedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

func parseProgress(project string, vals map[string]string) (*domain.ProgressRecord, error) {
	next, err := strconv.Atoi(vals["next_chapter"])
	if err != nil {
		return nil, fmt.Errorf("invalid next_chapter %q: %w", vals["next_chapter"], err)
	}
	rec := &domain.ProgressRecord{Project: project, NextChapter: next}

	if v, ok := vals["total_chapters"]; ok {
		if rec.TotalChapters, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid total_chapters %q: %w", v, err)
		}
	}
	if v, ok := vals["updated_at"]; ok {
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, errors.Join(fmt.Errorf("invalid updated_at %q", v), err)
		}
	}
	return rec, nil
}
