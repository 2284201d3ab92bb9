package batch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MeKo-Tech/cardex/internal/config"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/ocr"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// Dependencies are the collaborators a pipeline is assembled from.
type Dependencies struct {
	Engines  ocr.Factory
	AI       extract.AIClient // nil disables the AI path
	Logger   *slog.Logger
	Metrics  prometheus.Registerer // nil disables metrics
	Progress pipeline.ProgressCallback
}

// BuildPipeline creates a card pipeline from the application configuration.
func BuildPipeline(cfg *config.Config, deps Dependencies) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithEngineFactory(deps.Engines)

	if deps.AI != nil {
		b = b.WithAIClient(deps.AI)
	}
	if deps.Logger != nil {
		b = b.WithLogger(deps.Logger)
	}
	if deps.Metrics != nil {
		b = b.WithMetricsRegisterer(deps.Metrics)
	}
	if deps.Progress != nil {
		b = b.WithProgressCallback(deps.Progress)
	}
	return b.Build()
}
