// Package llm adapts langchaingo chat models to the structuring engine's
// AI client interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/MeKo-Tech/cardex/internal/extract"
)

// ErrEmptyCompletion is returned when the model answers without choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

// Client sends structuring requests to a chat model. It is safe for
// concurrent use; all callers share one rate limiter.
type Client struct {
	provider    string
	model       string
	llm         llms.Model
	limiter     *rate.Limiter
	temperature float64
	logger      *slog.Logger
}

// New builds a client for cfg.Provider. The "none" provider yields a nil
// client and no error; callers must not store that nil in an
// extract.AIClient, or the engine will treat it as configured.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.WithProviderDefaults()
	provider := strings.ToLower(cfg.Provider)

	var (
		model llms.Model
		err   error
	)
	switch provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderOllama:
		model, err = newOllama(cfg)
	case ProviderOpenAI, ProviderHuggingFace:
		model, err = newOpenAI(cfg)
	case ProviderMistral:
		model, err = newMistral(cfg)
	case ProviderAnthropic:
		model, err = newAnthropic(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}

	logger.Debug("AI client initialized", "provider", provider, "model", cfg.Model)
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		provider:    strings.ToLower(cfg.Provider),
		model:       cfg.Model,
		llm:         model,
		limiter:     rate.NewLimiter(limit, burst),
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Complete sends the prompt and card text and returns the raw answer.
func (c *Client) Complete(ctx context.Context, req extract.Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if req.Model != "" && req.Model != c.model {
		opts = append(opts, llms.WithModel(req.Model))
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(req.Text)},
		},
	}

	c.logger.Debug("Sending structuring request", "provider", c.provider, "model", c.model, "text_length", len(req.Text))
	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Content, nil
}

func newOllama(cfg Config) (llms.Model, error) {
	host := cfg.BaseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = ollamaHost
	}
	return ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(host),
		ollama.WithFormat("json"),
	)
}

func newOpenAI(cfg Config) (llms.Model, error) {
	apiKey := os.Getenv(cfg.apiKeyEnv())
	if apiKey == "" {
		return nil, fmt.Errorf("API key is not set (env %s)", cfg.apiKeyEnv())
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func newMistral(cfg Config) (llms.Model, error) {
	apiKey := os.Getenv(cfg.apiKeyEnv())
	if apiKey == "" {
		return nil, fmt.Errorf("API key is not set (env %s)", cfg.apiKeyEnv())
	}
	return mistral.New(
		mistral.WithModel(cfg.Model),
		mistral.WithAPIKey(apiKey),
	)
}

func newAnthropic(cfg Config) (llms.Model, error) {
	apiKey := os.Getenv(cfg.apiKeyEnv())
	if apiKey == "" {
		return nil, fmt.Errorf("API key is not set (env %s)", cfg.apiKeyEnv())
	}
	opts := []anthropic.Option{
		anthropic.WithModel(cfg.Model),
		anthropic.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(opts...)
}
