package batch

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MeKo-Tech/cardex/internal/export"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// ReasonUnreadable marks cards whose file could not be loaded.
const ReasonUnreadable = "unreadable_image"

// Result holds the outcome of a batch run, in discovery order.
type Result struct {
	Items       []pipeline.ItemResult
	ImagePaths  []string
	Duration    time.Duration
	WorkerCount int
}

// Results returns one pipeline result per card. Cards that failed to load
// are reported as failed results with ReasonUnreadable.
func (r *Result) Results() []*pipeline.Result {
	out := make([]*pipeline.Result, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Result != nil {
			out = append(out, it.Result)
			continue
		}
		out = append(out, &pipeline.Result{
			Source: it.Source,
			Status: pipeline.StatusFailed,
			Reason: ReasonUnreadable,
			Record: &extract.ContactRecord{},
		})
	}
	return out
}

// Errors returns the per-card errors keyed by path.
func (r *Result) Errors() map[string]error {
	errs := make(map[string]error)
	for _, it := range r.Items {
		if it.Err != nil {
			errs[it.Source] = it.Err
		}
	}
	return errs
}

// Stats summarizes the run.
func (r *Result) Stats() pipeline.ParallelStats {
	return pipeline.CalculateParallelStats(r.Items, r.Duration, r.WorkerCount)
}

// FormatResults renders the batch in format.
func (r *Result) FormatResults(format export.Format, opts export.Options) (string, error) {
	var buf bytes.Buffer
	if err := r.WriteResults(&buf, format, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteResults renders the batch to w. Text output is grouped per file and
// shows load errors inline.
func (r *Result) WriteResults(w io.Writer, format export.Format, opts export.Options) error {
	if format != export.FormatText {
		return export.Write(w, format, r.Results(), opts)
	}
	for i, it := range r.Items {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", it.Source); err != nil {
			return err
		}
		var err error
		if it.Err != nil {
			_, err = fmt.Fprintf(w, "error: %v\n", it.Err)
		} else {
			_, err = io.WriteString(w, export.Text(it.Result))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveResults writes the formatted results to cfg.OutputFile, or to stdout
// when no file is set.
func (r *Result) SaveResults(stdout io.Writer, cfg *Config) error {
	opts := export.Options{Details: cfg.Details}
	if cfg.OutputFile == "" {
		return r.WriteResults(stdout, cfg.Format, opts)
	}

	output, err := r.FormatResults(cfg.Format, opts)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if err := os.WriteFile(cfg.OutputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if !cfg.Quiet {
		_, _ = fmt.Fprintf(stdout, "Results written to %s\n", cfg.OutputFile)
	}
	return nil
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total cards: %d\n", len(r.ImagePaths))
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.ProcessedImages)
	_, _ = fmt.Fprintf(w, "  Unreadable: %d\n", stats.FailedImages)
	for _, s := range []pipeline.Status{pipeline.StatusSuccess, pipeline.StatusPartial, pipeline.StatusFailed} {
		_, _ = fmt.Fprintf(w, "  %s: %d\n", s, stats.StatusCounts[s])
	}
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per card: %v\n", stats.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f cards/sec\n", stats.ThroughputPerSec)
}

// WriteMetrics dumps the gathered metrics in the Prometheus text format to
// path, for the node_exporter textfile collector.
func WriteMetrics(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
