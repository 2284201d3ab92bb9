package batch

import (
	"context"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// progressCallback returns the callback for a run: the console bar when
// progress is shown, joined with any callback the pipeline carries.
func progressCallback(pl *pipeline.Pipeline, cfg *Config) pipeline.ProgressCallback {
	var cbs pipeline.MultiProgressCallback
	if cb := pl.Config().Parallel.ProgressCallback; cb != nil {
		cbs = append(cbs, cb)
	}
	if cfg.ShowProgress && !cfg.Quiet {
		out := cfg.ProgressOutput
		if out == nil {
			out = os.Stderr
		}
		cbs = append(cbs, pipeline.NewConsoleProgressCallback(out, "Processing: ").
			WithUpdateInterval(cfg.ProgressInterval))
	}
	switch len(cbs) {
	case 0:
		return nil
	case 1:
		return cbs[0]
	}
	return cbs
}

// processFiles runs the files through the pipeline's worker pool. Per-card
// errors are logged and kept in the items unless ContinueOnError is off.
func processFiles(ctx context.Context, pl *pipeline.Pipeline, files []string, cfg *Config,
	logger *slog.Logger) ([]pipeline.ItemResult, error) {
	pc := pl.Config().Parallel
	pc.MaxWorkers = cfg.Workers
	pc.ProgressCallback = progressCallback(pl, cfg)
	pc.ErrorHandler = func(index int, source string, err error) {
		logger.Warn("Card failed", "index", index, "file", source, "error", err)
	}

	items, err := pl.ProcessFilesParallel(ctx, files, pc)
	if err != nil && (items == nil || !cfg.ContinueOnError) {
		return nil, err
	}
	return items, nil
}
