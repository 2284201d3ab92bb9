package llm

import (
	"fmt"
	"math"
	"strings"
)

// Provider names.
const (
	ProviderNone        = "none"
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
	ProviderMistral     = "mistral"
	ProviderAnthropic   = "anthropic"
)

// Providers lists the accepted provider names.
var Providers = []string{ProviderNone, ProviderOllama, ProviderOpenAI, ProviderHuggingFace, ProviderMistral, ProviderAnthropic}

// Config selects and tunes the AI backend.
type Config struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key. Empty
	// selects the provider's conventional variable.
	APIKeyEnv         string  `json:"api_key_env" yaml:"api_key_env"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"` // 0 = unlimited
	Burst             int     `json:"burst" yaml:"burst"`
}

// Endpoint and model used when the config leaves them empty.
const (
	ollamaHost         = "http://localhost:11434"
	ollamaModel        = "gpt-oss:20b"
	huggingFaceBaseURL = "https://router.huggingface.co/v1"
	huggingFaceModel   = "openai/gpt-oss-20b"
)

// DefaultConfig targets a local Ollama server. Model and BaseURL stay empty
// so that switching the provider picks up that provider's own defaults.
func DefaultConfig() Config {
	return Config{
		Provider:          ProviderOllama,
		Temperature:       0,
		RequestsPerSecond: 2,
		Burst:             1,
	}
}

// Validate checks the provider name and limiter settings.
func (c Config) Validate() error {
	p := strings.ToLower(c.Provider)
	if p != "" && !contains(Providers, p) {
		return fmt.Errorf("unsupported AI provider %q (supported: %s)", c.Provider, strings.Join(Providers, ", "))
	}
	if math.IsNaN(c.Temperature) || c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %v", c.Temperature)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate limiting, got %d", c.Burst)
	}
	return nil
}

// WithProviderDefaults fills an empty model or base URL with the provider's
// default. Providers without defaults are returned unchanged.
func (c Config) WithProviderDefaults() Config {
	switch strings.ToLower(c.Provider) {
	case ProviderOllama:
		if c.Model == "" {
			c.Model = ollamaModel
		}
	case ProviderHuggingFace:
		if c.BaseURL == "" {
			c.BaseURL = huggingFaceBaseURL
		}
		if c.Model == "" {
			c.Model = huggingFaceModel
		}
	}
	return c
}

func (c Config) apiKeyEnv() string {
	if c.APIKeyEnv != "" {
		return c.APIKeyEnv
	}
	switch strings.ToLower(c.Provider) {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderHuggingFace:
		return "HF_TOKEN"
	case ProviderMistral:
		return "MISTRAL_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
