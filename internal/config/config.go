//nolint:lll
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/cardex/internal/confidence"
	"github.com/MeKo-Tech/cardex/internal/export"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/fusion"
	"github.com/MeKo-Tech/cardex/internal/imageio"
	"github.com/MeKo-Tech/cardex/internal/llm"
	"github.com/MeKo-Tech/cardex/internal/ocr"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// Config represents the complete configuration for the cardex application.
// It is loaded from cardex.yaml, CARDEX_* environment variables and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Languages run as OCR passes, in order.
	Languages []string `mapstructure:"languages" yaml:"languages" json:"languages"`

	OCR         OCRConfig         `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Fusion      FusionConfig      `mapstructure:"fusion" yaml:"fusion" json:"fusion"`
	Structuring StructuringConfig `mapstructure:"structuring" yaml:"structuring" json:"structuring"`
	Rules       RulesConfig       `mapstructure:"rules" yaml:"rules" json:"rules"`
	Aggregator  AggregatorConfig  `mapstructure:"aggregator" yaml:"aggregator" json:"aggregator"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
	Batch       BatchConfig       `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// OCRConfig contains pass runner and preprocessing settings.
type OCRConfig struct {
	PassTimeout   time.Duration `mapstructure:"pass_timeout" yaml:"pass_timeout" json:"pass_timeout"`
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	MaxParallel   int           `mapstructure:"max_parallel" yaml:"max_parallel" json:"max_parallel"`
	Normalize     string        `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
	Preprocess    bool          `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	MaxSide       int           `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
}

// FusionConfig contains result fusion settings.
type FusionConfig struct {
	IoUThreshold     float64  `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	LineTolerance    float64  `mapstructure:"line_tolerance" yaml:"line_tolerance" json:"line_tolerance"`
	LanguagePriority []string `mapstructure:"language_priority" yaml:"language_priority" json:"language_priority"`
}

// StructuringConfig contains AI structuring settings.
type StructuringConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Provider          string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model             string        `mapstructure:"model" yaml:"model" json:"model"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKeyEnv         string        `mapstructure:"api_key_env" yaml:"api_key_env" json:"api_key_env"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" json:"retry_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst" json:"burst"`
	AIConfidence      float64       `mapstructure:"ai_confidence" yaml:"ai_confidence" json:"ai_confidence"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
}

// RulesConfig contains the fallback keyword lists.
type RulesConfig struct {
	TitleKeywords   []string `mapstructure:"title_keywords" yaml:"title_keywords" json:"title_keywords"`
	CompanySuffixes []string `mapstructure:"company_suffixes" yaml:"company_suffixes" json:"company_suffixes"`
	MobileKeywords  []string `mapstructure:"mobile_keywords" yaml:"mobile_keywords" json:"mobile_keywords"`
}

// AggregatorConfig contains the overall confidence weights.
type AggregatorConfig struct {
	OCRWeight         float64 `mapstructure:"ocr_weight" yaml:"ocr_weight" json:"ocr_weight"`
	StructuringWeight float64 `mapstructure:"structuring_weight" yaml:"structuring_weight" json:"structuring_weight"`
}

// OutputConfig contains output settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	Details     bool   `mapstructure:"details" yaml:"details" json:"details"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// DefaultConfig returns the configuration defaults, taken from the
// component packages.
func DefaultConfig() Config {
	runner := ocr.DefaultRunnerConfig()
	fus := fusion.DefaultConfig()
	st := extract.DefaultConfig()
	ai := llm.DefaultConfig()
	pre := imageio.DefaultPreprocessOptions()
	w := confidence.DefaultWeights()

	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Languages: []string{"en", "jp", "vi"},
		OCR: OCRConfig{
			PassTimeout:   runner.PassTimeout,
			MinConfidence: runner.MinConfidence,
			MaxParallel:   runner.MaxParallel,
			Normalize:     runner.Clean.NormalizeForm,
			Preprocess:    pre.Enabled,
			MaxSide:       pre.MaxSide,
		},
		Fusion: FusionConfig{
			IoUThreshold:     fus.IoUThreshold,
			LineTolerance:    fus.LineTolerance,
			LanguagePriority: fus.LanguagePriority,
		},
		Structuring: StructuringConfig{
			Enabled:           true,
			Provider:          ai.Provider,
			Model:             ai.Model,
			BaseURL:           ai.BaseURL,
			Timeout:           st.Timeout,
			RetryBackoff:      st.RetryBackoff,
			RequestsPerSecond: ai.RequestsPerSecond,
			Burst:             ai.Burst,
			AIConfidence:      st.AIConfidence,
			Temperature:       ai.Temperature,
		},
		Rules: RulesConfig{
			TitleKeywords:   st.Rules.TitleKeywords,
			CompanySuffixes: st.Rules.CompanySuffixes,
			MobileKeywords:  st.Rules.MobileKeywords,
		},
		Aggregator: AggregatorConfig{
			OCRWeight:         w.OCR,
			StructuringWeight: w.Structuring,
		},
		Output: OutputConfig{Format: string(export.FormatText)},
		Batch: BatchConfig{
			Workers:         4,
			Recursive:       true,
			ContinueOnError: true,
		},
	}
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validNormalize  = []string{"", "NFC", "NFKC"}
)

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.LogFormat != "" && !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}
	if len(c.Languages) == 0 {
		return errors.New("at least one language is required")
	}
	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return err
	}

	if err := validateThreshold(c.OCR.MinConfidence, "ocr.min_confidence"); err != nil {
		return err
	}
	if c.OCR.PassTimeout < 0 {
		return fmt.Errorf("invalid ocr.pass_timeout: %v (must not be negative)", c.OCR.PassTimeout)
	}
	if c.OCR.MaxParallel < 0 {
		return fmt.Errorf("invalid ocr.max_parallel: %d (must not be negative)", c.OCR.MaxParallel)
	}
	if !slices.Contains(validNormalize, strings.ToUpper(c.OCR.Normalize)) {
		return fmt.Errorf("invalid ocr.normalize: %s (must be NFC, NFKC or empty)", c.OCR.Normalize)
	}
	if c.OCR.MaxSide < 0 {
		return fmt.Errorf("invalid ocr.max_side: %d (must not be negative)", c.OCR.MaxSide)
	}

	if err := c.ToFusionConfig().Validate(); err != nil {
		return fmt.Errorf("invalid fusion config: %w", err)
	}
	if err := c.ToStructuringConfig().Validate(); err != nil {
		return fmt.Errorf("invalid structuring config: %w", err)
	}
	if c.Structuring.Enabled {
		if err := c.ToLLMConfig().Validate(); err != nil {
			return fmt.Errorf("invalid structuring config: %w", err)
		}
	}
	if err := c.ToWeights().Validate(); err != nil {
		return fmt.Errorf("invalid aggregator config: %w", err)
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

// AIEnabled reports whether an AI provider should be constructed.
func (c *Config) AIEnabled() bool {
	p := strings.ToLower(c.Structuring.Provider)
	return c.Structuring.Enabled && p != "" && p != llm.ProviderNone
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Languages = slices.Clone(c.Languages)
	cfg.Runner = c.ToRunnerConfig()
	cfg.Fusion = c.ToFusionConfig()
	cfg.Structuring = c.ToStructuringConfig()
	cfg.Weights = c.ToWeights()
	cfg.Preprocess = c.ToPreprocessOptions()
	cfg.Parallel.MaxWorkers = c.Batch.Workers
	return cfg
}

// ToRunnerConfig converts to ocr.RunnerConfig.
func (c *Config) ToRunnerConfig() ocr.RunnerConfig {
	cfg := ocr.DefaultRunnerConfig()
	cfg.PassTimeout = c.OCR.PassTimeout
	cfg.MinConfidence = c.OCR.MinConfidence
	cfg.MaxParallel = c.OCR.MaxParallel
	cfg.Clean.NormalizeForm = strings.ToUpper(c.OCR.Normalize)
	return cfg
}

// ToPreprocessOptions converts to imageio.PreprocessOptions.
func (c *Config) ToPreprocessOptions() imageio.PreprocessOptions {
	opts := imageio.DefaultPreprocessOptions()
	opts.Enabled = c.OCR.Preprocess
	opts.MaxSide = c.OCR.MaxSide
	return opts
}

// ToFusionConfig converts to fusion.Config.
func (c *Config) ToFusionConfig() fusion.Config {
	return fusion.Config{
		IoUThreshold:     c.Fusion.IoUThreshold,
		LineTolerance:    c.Fusion.LineTolerance,
		LanguagePriority: slices.Clone(c.Fusion.LanguagePriority),
	}
}

// ToStructuringConfig converts to extract.Config. The model is chosen by
// the AI client (see ToLLMConfig), so no per-request override is set.
func (c *Config) ToStructuringConfig() extract.Config {
	cfg := extract.DefaultConfig()
	cfg.Timeout = c.Structuring.Timeout
	cfg.RetryBackoff = c.Structuring.RetryBackoff
	cfg.AIConfidence = c.Structuring.AIConfidence
	cfg.Rules = extract.RulesConfig{
		TitleKeywords:   slices.Clone(c.Rules.TitleKeywords),
		CompanySuffixes: slices.Clone(c.Rules.CompanySuffixes),
		MobileKeywords:  slices.Clone(c.Rules.MobileKeywords),
	}
	return cfg
}

// ToLLMConfig converts to llm.Config. A disabled structuring section maps to
// the "none" provider; an empty model or base URL takes the provider's default.
func (c *Config) ToLLMConfig() llm.Config {
	provider := c.Structuring.Provider
	if !c.Structuring.Enabled {
		provider = llm.ProviderNone
	}
	cfg := llm.Config{
		Provider:          provider,
		Model:             c.Structuring.Model,
		BaseURL:           c.Structuring.BaseURL,
		APIKeyEnv:         c.Structuring.APIKeyEnv,
		Temperature:       c.Structuring.Temperature,
		RequestsPerSecond: c.Structuring.RequestsPerSecond,
		Burst:             c.Structuring.Burst,
	}
	return cfg.WithProviderDefaults()
}

// ToWeights converts to confidence.Weights.
func (c *Config) ToWeights() confidence.Weights {
	return confidence.Weights{OCR: c.Aggregator.OCRWeight, Structuring: c.Aggregator.StructuringWeight}
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
