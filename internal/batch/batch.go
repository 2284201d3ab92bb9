// Package batch processes directories and lists of card images through the
// pipeline and writes the combined output.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// ProcessBatch discovers the card images under paths and processes them
// with pl.
func ProcessBatch(ctx context.Context, pl *pipeline.Pipeline, paths []string, cfg *Config,
	logger *slog.Logger) (*Result, error) {
	if pl == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	files, err := discoverImageFiles(paths, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	logger.Info("Batch discovered cards", "count", len(files), "workers", cfg.Workers)

	start := time.Now()
	items, err := processFiles(ctx, pl, files, cfg, logger)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	res := &Result{
		Items:       items,
		ImagePaths:  files,
		Duration:    duration,
		WorkerCount: min(cfg.Workers, len(files)),
	}
	stats := res.Stats()
	logger.Info("Batch finished",
		"cards", stats.TotalImages,
		"processed", stats.ProcessedImages,
		"unreadable", stats.FailedImages,
		"duration_ms", duration.Milliseconds())
	return res, nil
}
