package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardex/internal/batch"
)

func newBatchCommand(a *app) *cobra.Command {
	var (
		noAI             bool
		showProgress     bool
		quiet            bool
		showStats        bool
		progressInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "batch <paths...>",
		Short: "Process directories of card images in parallel",
		Long: `Batch discovers card images in the given files and directories and
processes them with a pool of workers. Results are written in discovery
order; unreadable files are reported and, unless --continue-on-error=false,
do not stop the run.

Examples:
  cardex batch scans/
  cardex batch scans/ --recursive=false --include '*.jpg' --workers 8
  cardex batch scans/ --format csv --output contacts.csv --stats
  cardex batch scans/ --metrics-file /var/lib/node_exporter/cardex.prom`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noAI {
				a.cfg.Structuring.Enabled = false
			}
			bc := batch.FromConfig(a.cfg)
			bc.ShowProgress = showProgress
			bc.Quiet = quiet
			bc.ShowStats = showStats
			bc.ProgressInterval = progressInterval
			bc.ProgressOutput = cmd.ErrOrStderr()
			return a.runBatch(cmd, args, bc)
		},
	}

	f := cmd.Flags()
	f.IntP("workers", "w", 0, "number of parallel workers (default: batch.workers, 4)")
	f.BoolP("recursive", "r", true, "recursively scan directories")
	f.StringSlice("include", nil, "file patterns to include (e.g. '*.jpg')")
	f.StringSlice("exclude", nil, "file patterns to exclude")
	f.Bool("continue-on-error", true, "keep going when a card cannot be read")
	f.StringSlice("languages", nil, "OCR languages to run, in order (e.g. en,jp,vi)")
	f.StringP("format", "f", "text", "output format: text, json, yaml, csv, vcard")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.Bool("details", false, "include passes, timings and fusion statistics in json/yaml output")
	f.String("metrics-file", "", "write Prometheus metrics in text format to this file")
	f.String("provider", "", "AI provider: ollama, openai, huggingface, mistral, anthropic, none")
	f.String("model", "", "AI model name")
	f.BoolVar(&noAI, "no-ai", false, "skip the AI model and use keyword rules only")
	f.BoolVar(&showProgress, "progress", true, "show progress bar on stderr")
	f.BoolVar(&quiet, "quiet", false, "suppress progress output")
	f.BoolVar(&showStats, "stats", false, "print processing statistics to stderr")
	f.DurationVar(&progressInterval, "progress-interval", 500*time.Millisecond, "progress update interval")
	bindKey(f, "workers", "batch.workers")
	bindKey(f, "recursive", "batch.recursive")
	bindKey(f, "include", "batch.include")
	bindKey(f, "exclude", "batch.exclude")
	bindKey(f, "continue-on-error", "batch.continue_on_error")
	bindKey(f, "languages", "languages")
	bindKey(f, "format", "output.format")
	bindKey(f, "output", "output.file")
	bindKey(f, "details", "output.details")
	bindKey(f, "metrics-file", "output.metrics_file")
	bindKey(f, "provider", "structuring.provider")
	bindKey(f, "model", "structuring.model")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, args []string, bc *batch.Config) error {
	deps, err := a.dependencies()
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	if bc.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		deps.Metrics = reg
	}

	pl, err := batch.BuildPipeline(a.cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			a.logger.Warn("Failed to close engines", "error", err)
		}
	}()

	if !bc.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Processing %d paths with %d workers (%d CPUs)...\n",
			len(args), bc.Workers, runtime.NumCPU())
	}

	res, err := batch.ProcessBatch(cmd.Context(), pl, args, bc, a.logger)
	if err != nil {
		return err
	}
	if err := res.SaveResults(cmd.OutOrStdout(), bc); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if bc.ShowStats && !bc.Quiet {
		res.PrintStats(cmd.ErrOrStderr())
	}
	if reg != nil {
		if err := batch.WriteMetrics(bc.MetricsFile, reg); err != nil {
			return err
		}
		a.logger.Info("Metrics written", "file", bc.MetricsFile)
	}
	return nil
}
