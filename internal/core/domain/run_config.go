package domain

import "time"

// ProviderConfig describes an OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// RunConfig is fixed for the lifetime of a run and passed by value.
type RunConfig struct {
	Project       string
	TotalChapters int
	WordNumber    int
	OutputDir     string
	Params        GenerationParams
	LLM           ProviderConfig
	Embedding     ProviderConfig
	RetrievalK    int
	MaxRetries    int
	RetryDelay    time.Duration
}

// Request builds the stage request for chapter n.
func (c RunConfig) Request(n int) ChapterRequest {
	return ChapterRequest{
		Number:        n,
		TotalChapters: c.TotalChapters,
		WordNumber:    c.WordNumber,
		Params:        c.Params,
	}
}
