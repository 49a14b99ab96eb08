// Package llm talks to OpenAI-compatible chat and embedding endpoints.
//
// Transport retries are disabled in the SDK: every failure surfaces to the
// stage, and the run loop's retry executor owns the retry policy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/vietddude/autowriter/internal/core/domain"
	"github.com/vietddude/autowriter/internal/writing/metrics"
)

const (
	defaultChatModel      = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultTimeout        = 600 * time.Second
)

// ErrEmptyCompletion is returned when the service answers without any text.
var ErrEmptyCompletion = errors.New("completion contained no text")

// Message is a single prompt turn.
type Message struct {
	System string
	User   string
}

// ChatClient generates text from a prompt.
type ChatClient struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewChatClient creates a chat client for the configured provider.
func NewChatClient(cfg domain.ProviderConfig, httpClient *http.Client) *ChatClient {
	if cfg.Model == "" {
		cfg.Model = defaultChatModel
	}
	return &ChatClient{
		client:      openai.NewClient(requestOptions(cfg, httpClient)...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends a prompt and returns the first choice's text.
func (c *ChatClient) Complete(ctx context.Context, msg Message) (string, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(msg.System) != "" {
		messages = append(messages, openai.SystemMessage(msg.System))
	}
	messages = append(messages, openai.UserMessage(msg.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	observe("chat", start, err)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Model returns the configured chat model.
func (c *ChatClient) Model() string {
	return c.model
}

// Embedder turns text into vectors.
type Embedder struct {
	client openai.Client
	model  string
}

// NewEmbedder creates an embedding client for the configured provider.
func NewEmbedder(cfg domain.ProviderConfig, httpClient *http.Client) *Embedder {
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	return &Embedder{
		client: openai.NewClient(requestOptions(cfg, httpClient)...),
		model:  cfg.Model,
	}
}

// Embed returns one vector per input, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	observe("embedding", start, err)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func requestOptions(cfg domain.ProviderConfig, httpClient *http.Client) []option.RequestOption {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

func observe(call string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequests.WithLabelValues(call, status).Inc()
	metrics.LLMLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("generation service error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("generation service error (status %d)", apiErr.StatusCode)
	}
	return err
}
