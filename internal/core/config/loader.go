package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/autowriter/internal/core/domain"
)

// Defaults.
const (
	DefaultProject    = "novel"
	DefaultOutputDir  = "./output"
	DefaultMaxRetries = 30
	DefaultRetryDelay = 30 * time.Second
	DefaultRetrievalK = 4
	DefaultLLMTimeout = 600 * time.Second
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content and fills in defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Novel.Project == "" {
		c.Novel.Project = DefaultProject
	}
	if c.Novel.OutputDir == "" {
		c.Novel.OutputDir = DefaultOutputDir
	}
	if c.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		c.Retry.MaxRetries = &n
	}
	if c.Retry.Delay == nil {
		d := DefaultRetryDelay
		c.Retry.Delay = &d
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}
	if c.Embedding.RetrievalK == 0 {
		c.Embedding.RetrievalK = DefaultRetrievalK
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.LLM.BaseURL
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = c.LLM.Timeout
	}
	if c.Progress.Backend == "" {
		c.Progress.Backend = BackendFile
	}
	if c.Progress.Dir == "" {
		c.Progress.Dir = c.Novel.OutputDir
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = BackendFile
	}
	if c.Vector.Backend == "" {
		c.Vector.Backend = BackendMemory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the run loop cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Novel.TotalChapters <= 0 {
		errs = append(errs, fmt.Errorf("novel.total_chapters must be positive, got %d", c.Novel.TotalChapters))
	}
	if c.Novel.WordNumber <= 0 {
		errs = append(errs, fmt.Errorf("novel.word_number must be positive, got %d", c.Novel.WordNumber))
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative, got %d", *c.Retry.MaxRetries))
	}
	if c.Retry.Delay != nil && *c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay must not be negative, got %s", *c.Retry.Delay))
	}

	switch c.Progress.Backend {
	case BackendFile, BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres progress backend"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis progress backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown progress.backend %q", c.Progress.Backend))
	}

	switch c.Artifacts.Backend {
	case BackendFile:
	case BackendS3:
		if err := c.Artifacts.S3.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend))
	}

	switch c.Vector.Backend {
	case BackendMemory, BackendNone:
	case BackendMilvus:
		if c.Vector.Milvus.Address == "" {
			errs = append(errs, errors.New("vector.milvus.address is required for the milvus backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector.backend %q", c.Vector.Backend))
	}

	return errors.Join(errs...)
}

// RunConfig builds the immutable run configuration.
func (c *AppConfig) RunConfig() domain.RunConfig {
	maxRetries := DefaultMaxRetries
	if c.Retry.MaxRetries != nil {
		maxRetries = *c.Retry.MaxRetries
	}
	retryDelay := DefaultRetryDelay
	if c.Retry.Delay != nil {
		retryDelay = *c.Retry.Delay
	}
	retrievalK := c.Embedding.RetrievalK
	if !c.Embedding.Enabled {
		retrievalK = 0
	}

	return domain.RunConfig{
		Project:       c.Novel.Project,
		TotalChapters: c.Novel.TotalChapters,
		WordNumber:    c.Novel.WordNumber,
		OutputDir:     c.Novel.OutputDir,
		Params: domain.GenerationParams{
			Topic:              c.Novel.Topic,
			Genre:              c.Novel.Genre,
			UserGuidance:       c.Novel.UserGuidance,
			CharactersInvolved: c.Novel.CharactersInvolved,
			KeyItems:           c.Novel.KeyItems,
			SceneLocation:      c.Novel.SceneLocation,
			TimeConstraint:     c.Novel.TimeConstraint,
		},
		LLM: domain.ProviderConfig{
			APIKey:      c.LLM.APIKey,
			BaseURL:     c.LLM.BaseURL,
			Model:       c.LLM.Model,
			Temperature: c.LLM.Temperature,
			MaxTokens:   c.LLM.MaxTokens,
			Timeout:     c.LLM.Timeout,
		},
		Embedding: domain.ProviderConfig{
			APIKey:  c.Embedding.APIKey,
			BaseURL: c.Embedding.BaseURL,
			Model:   c.Embedding.Model,
			Timeout: c.Embedding.Timeout,
		},
		RetrievalK: retrievalK,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}
}
