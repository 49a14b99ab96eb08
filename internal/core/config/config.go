package config

import (
	"time"

	"github.com/vietddude/autowriter/internal/infra/artifact"
	redisclient "github.com/vietddude/autowriter/internal/infra/redis"
	"github.com/vietddude/autowriter/internal/infra/storage/postgres"
	"github.com/vietddude/autowriter/internal/infra/vector"
	"github.com/vietddude/autowriter/internal/telemetry/tracer"
)

// Backend names.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
	BackendMilvus   = "milvus"
	BackendNone     = "none"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Novel     NovelConfig        `yaml:"novel"`
	Retry     RetryConfig        `yaml:"retry"`
	LLM       LLMConfig          `yaml:"llm"`
	Embedding EmbeddingConfig    `yaml:"embedding"`
	Progress  ProgressConfig     `yaml:"progress"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Artifacts ArtifactsConfig    `yaml:"artifacts"`
	Vector    VectorConfig       `yaml:"vector"`
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Tracing   tracer.Config      `yaml:"tracing"`
}

// NovelConfig describes the book being written.
type NovelConfig struct {
	Project            string `yaml:"project"`
	Topic              string `yaml:"topic"`
	Genre              string `yaml:"genre"`
	TotalChapters      int    `yaml:"total_chapters"`
	WordNumber         int    `yaml:"word_number"` // target characters per chapter
	UserGuidance       string `yaml:"user_guidance"`
	CharactersInvolved string `yaml:"characters_involved"`
	KeyItems           string `yaml:"key_items"`
	SceneLocation      string `yaml:"scene_location"`
	TimeConstraint     string `yaml:"time_constraint"`
	OutputDir          string `yaml:"output_dir"`
}

// RetryConfig holds the per-stage retry policy.
type RetryConfig struct {
	MaxRetries *int           `yaml:"max_retries"` // nil = default, 0 = single attempt
	Delay      *time.Duration `yaml:"delay"`      // nil = default, 0 = retry immediately
}

// LLMConfig holds chat completion settings.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Enabled    bool          `yaml:"enabled"`
	APIKey     string        `yaml:"api_key"` // falls back to llm.api_key
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	RetrievalK int           `yaml:"retrieval_k"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ProgressConfig selects where the checkpoint and failed-chapter ledger live.
type ProgressConfig struct {
	Backend string `yaml:"backend"` // file, postgres, redis, memory
	Dir     string `yaml:"dir"`     // file backend, defaults to novel.output_dir
}

// ArtifactsConfig selects where chapter texts live.
type ArtifactsConfig struct {
	Backend string            `yaml:"backend"` // file, s3
	S3      artifact.S3Config `yaml:"s3"`
}

// VectorConfig selects the passage index.
type VectorConfig struct {
	Backend string              `yaml:"backend"` // memory, milvus, none
	Milvus  vector.MilvusConfig `yaml:"milvus"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the status server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
