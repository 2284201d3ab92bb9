package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MeKo-Tech/cardex/internal/confidence"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/fusion"
	"github.com/MeKo-Tech/cardex/internal/imageio"
	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Config holds configuration for the card pipeline and its stages.
type Config struct {
	Languages   []string
	Runner      ocr.RunnerConfig
	Fusion      fusion.Config
	Structuring extract.Config
	Weights     confidence.Weights
	Preprocess  imageio.PreprocessOptions
	Parallel    ParallelConfig
}

// DefaultConfig returns a default pipeline config with stage defaults.
// Preprocessing is off: Go callers usually hand in prepared images.
func DefaultConfig() Config {
	pre := imageio.DefaultPreprocessOptions()
	pre.Enabled = false
	return Config{
		Languages:   []string{"en", "jp", "vi"},
		Runner:      ocr.DefaultRunnerConfig(),
		Fusion:      fusion.DefaultConfig(),
		Structuring: extract.DefaultConfig(),
		Weights:     confidence.DefaultWeights(),
		Preprocess:  pre,
		Parallel:    DefaultParallelConfig(),
	}
}

// Validate checks every stage configuration.
func (c Config) Validate() error {
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	if err := c.Structuring.Validate(); err != nil {
		return fmt.Errorf("structuring: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	if c.Runner.MinConfidence < 0 || c.Runner.MinConfidence > 1 {
		return fmt.Errorf("ocr: min_confidence must be in [0,1], got %v", c.Runner.MinConfidence)
	}
	if c.Runner.PassTimeout < 0 {
		return errors.New("ocr: pass_timeout must not be negative")
	}
	if c.Runner.MaxParallel < 0 {
		return errors.New("ocr: max_parallel must not be negative")
	}
	return nil
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	factory  ocr.Factory
	registry *ocr.Registry
	client   extract.AIClient
	logger   *slog.Logger
	reg      prometheus.Registerer
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithLanguages sets the language codes processed by ProcessImage.
func (b *Builder) WithLanguages(langs ...string) *Builder {
	cleaned := make([]string, 0, len(langs))
	for _, l := range langs {
		if l != "" {
			cleaned = append(cleaned, l)
		}
	}
	if len(cleaned) > 0 {
		b.cfg.Languages = cleaned
	}
	return b
}

// WithEngineFactory sets the factory used to create per-language engines.
func (b *Builder) WithEngineFactory(f ocr.Factory) *Builder {
	b.factory = f
	return b
}

// WithRegistry shares an existing engine cache.
func (b *Builder) WithRegistry(r *ocr.Registry) *Builder {
	b.registry = r
	return b
}

// WithAIClient sets the structuring AI capability. Without one every card
// is structured by the fallback rules.
func (b *Builder) WithAIClient(c extract.AIClient) *Builder {
	b.client = c
	return b
}

// WithPassTimeout sets the per-language OCR deadline.
func (b *Builder) WithPassTimeout(d time.Duration) *Builder {
	if d >= 0 {
		b.cfg.Runner.PassTimeout = d
	}
	return b
}

// WithMinTokenConfidence sets the confidence below which tokens are dropped.
func (b *Builder) WithMinTokenConfidence(c float64) *Builder {
	b.cfg.Runner.MinConfidence = c
	return b
}

// WithMaxParallelPasses bounds concurrent language passes.
func (b *Builder) WithMaxParallelPasses(n int) *Builder {
	if n >= 0 {
		b.cfg.Runner.MaxParallel = n
	}
	return b
}

// WithIoUThreshold sets the fusion overlap threshold.
func (b *Builder) WithIoUThreshold(th float64) *Builder {
	if th > 0 {
		b.cfg.Fusion.IoUThreshold = th
	}
	return b
}

// WithLineTolerance sets the fusion line grouping tolerance.
func (b *Builder) WithLineTolerance(tol float64) *Builder {
	if tol > 0 {
		b.cfg.Fusion.LineTolerance = tol
	}
	return b
}

// WithLanguagePriority sets the fusion tie-break order.
func (b *Builder) WithLanguagePriority(langs ...string) *Builder {
	if len(langs) > 0 {
		b.cfg.Fusion.LanguagePriority = langs
	}
	return b
}

// WithStructuring replaces the structuring configuration.
func (b *Builder) WithStructuring(cfg extract.Config) *Builder {
	b.cfg.Structuring = cfg
	return b
}

// WithAITimeout sets the per-attempt AI deadline.
func (b *Builder) WithAITimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.Structuring.Timeout = d
	}
	return b
}

// WithRetryBackoff sets the delay before the single AI retry.
func (b *Builder) WithRetryBackoff(d time.Duration) *Builder {
	if d >= 0 {
		b.cfg.Structuring.RetryBackoff = d
	}
	return b
}

// WithRules sets the fallback keyword lists.
func (b *Builder) WithRules(r extract.RulesConfig) *Builder {
	b.cfg.Structuring.Rules = r
	return b
}

// WithWeights sets the confidence aggregator weights.
func (b *Builder) WithWeights(w confidence.Weights) *Builder {
	b.cfg.Weights = w
	return b
}

// WithPreprocess sets image preprocessing options.
func (b *Builder) WithPreprocess(opts imageio.PreprocessOptions) *Builder {
	b.cfg.Preprocess = opts
	return b
}

// WithParallelWorkers sets the number of workers for multi-image processing.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithProgressCallback sets the progress callback for multi-image processing.
func (b *Builder) WithProgressCallback(cb ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = cb
	return b
}

// WithLogger sets the logger. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsRegisterer registers pipeline metrics with reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.reg = reg
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration.
func (b *Builder) Validate() error { return b.cfg.Validate() }

// Build validates the configuration and constructs the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := b.registry
	if registry == nil && b.factory != nil {
		registry = ocr.NewRegistry(b.factory)
	}
	var metrics *Metrics
	if b.reg != nil {
		metrics = NewMetrics(b.reg)
	}

	slog.Debug("Pipeline built",
		"languages", b.cfg.Languages,
		"ai_enabled", b.client != nil,
		"iou_threshold", b.cfg.Fusion.IoUThreshold)

	return &Pipeline{
		cfg:      b.cfg,
		registry: registry,
		client:   b.client,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Pipeline wires the pass runner, fusion, structuring and aggregation.
type Pipeline struct {
	cfg      Config
	registry *ocr.Registry
	client   extract.AIClient
	logger   *slog.Logger
	metrics  *Metrics
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Metrics returns the pipeline metrics, or nil when disabled.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Close releases cached engines.
func (p *Pipeline) Close() error {
	if p == nil || p.registry == nil {
		return nil
	}
	return p.registry.Close()
}
