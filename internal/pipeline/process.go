package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/cardex/internal/confidence"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/fusion"
	"github.com/MeKo-Tech/cardex/internal/imageio"
	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// ErrNoEngines is returned by ProcessImage when the pipeline was built
// without an engine factory or registry.
var ErrNoEngines = errors.New("no OCR engine factory configured")

// ProcessImage runs the configured languages against img.
func (p *Pipeline) ProcessImage(ctx context.Context, img ocr.Image) (*Result, error) {
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if p.registry == nil {
		return nil, ErrNoEngines
	}
	return p.Process(ctx, img, p.registry.Profiles(p.cfg.Languages))
}

// ProcessFile loads path and runs the configured languages against it.
// Load failures are returned as errors; they never become a Result.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Result, error) {
	img, _, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	res, err := p.ProcessImage(ctx, img)
	if err != nil {
		return nil, err
	}
	res.Source = path
	return res, nil
}

// Process turns one card image into a Result. Per-language and AI failures
// are reported in the Result; the only error returned is ctx's when the
// request is canceled.
func (p *Pipeline) Process(ctx context.Context, img ocr.Image, profiles []ocr.LanguageProfile) (*Result, error) {
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	totalStart := time.Now()
	res := &Result{
		RequestID: uuid.NewString(),
		Record:    &extract.ContactRecord{},
		Passes:    []PassReport{},
	}
	if img.Name != "" {
		res.Source = filepath.Base(img.Name)
	}
	logger := p.logger.With("request_id", res.RequestID)
	logger.Debug("Starting card processing",
		"source", res.Source,
		"languages", len(profiles),
		"bytes", len(img.Data))

	stageStart := time.Now()
	prepared, err := imageio.Prepare(img, p.cfg.Preprocess)
	res.Timings.PreprocessMs = time.Since(stageStart).Milliseconds()
	if err != nil {
		logger.Warn("Image preparation failed", "error", err)
		return p.finish(logger, res, StatusFailed, ReasonOCRUnavailable, totalStart), nil
	}

	stageStart = time.Now()
	passes, runErr := ocr.NewRunner(p.cfg.Runner, logger).Run(ctx, prepared, profiles)
	res.Timings.OCRMs = time.Since(stageStart).Milliseconds()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Passes = passReports(passes)
	for _, pr := range res.Passes {
		p.metrics.observePass(pr)
	}
	logger.Debug("OCR passes complete",
		"passes", len(passes),
		"failed", len(passes.Failures()),
		"tokens", passes.TokenCount(),
		"duration_ms", res.Timings.OCRMs)
	if runErr != nil || passes.TokenCount() == 0 {
		if runErr != nil {
			logger.Warn("No OCR pass succeeded", "error", runErr)
		}
		return p.finish(logger, res, StatusFailed, ReasonOCRUnavailable, totalStart), nil
	}

	stageStart = time.Now()
	fused := fusion.Fuse(passes.TokenLists(), p.cfg.Fusion)
	res.Timings.FusionMs = time.Since(stageStart).Milliseconds()
	res.Text = fused.Text
	res.Fusion = fused.Stats
	res.DominantLanguage = fused.DominantLanguage
	p.metrics.observeFusion(fused.Stats)
	logger.Debug("Fusion complete",
		"input", fused.Stats.Input,
		"survivors", fused.Stats.Survivors,
		"lines", len(fused.Lines),
		"duration_ms", res.Timings.FusionMs)

	stageStart = time.Now()
	structured, err := extract.NewEngine(p.client, p.cfg.Structuring, logger).Structure(ctx, fused.Text)
	res.Timings.StructuringMs = time.Since(stageStart).Milliseconds()
	if err != nil {
		return nil, err
	}
	p.metrics.observeStructuring(structured.Path, structured.Outcome)
	res.Record = structured.Record
	res.Structuring = &StructuringReport{
		Path:     structured.Path,
		Outcome:  structured.Outcome,
		Attempts: structured.Attempts,
	}
	if structured.AIErr != nil {
		res.Structuring.Error = structured.AIErr.Error()
	}

	res.OCRConfidence = confidence.OCRConfidence(fused.Tokens())

	var status Status
	var reason string
	switch {
	case len(res.Record.Extracted()) == 0:
		status, reason = StatusFailed, ReasonNoExtractableFields
	case structured.Path == extract.PathAI:
		status = StatusSuccess
	default:
		status, reason = StatusPartial, structured.Outcome.Reason()
	}
	if status != StatusFailed {
		res.OverallConfidence = confidence.Aggregate(res.OCRConfidence, structured.Confidence(), p.cfg.Weights)
	}
	return p.finish(logger, res, status, reason, totalStart), nil
}

func (p *Pipeline) finish(logger *slog.Logger, res *Result, status Status, reason string, start time.Time) *Result {
	res.Status = status
	res.Reason = reason
	d := time.Since(start)
	res.Timings.TotalMs = d.Milliseconds()
	p.metrics.observeResult(res, d)

	logger.Debug("Card processing complete",
		"status", string(status),
		"reason", reason,
		"fields", len(res.Record.Extracted()),
		"overall_confidence", res.OverallConfidence,
		"duration_ms", res.Timings.TotalMs)
	return res
}

func passReports(passes ocr.PassSet) []PassReport {
	out := make([]PassReport, 0, len(passes))
	for _, pr := range passes {
		rep := PassReport{
			Language:   pr.Language,
			Tokens:     len(pr.Tokens),
			Dropped:    pr.Dropped,
			DurationMs: pr.Duration.Milliseconds(),
		}
		if pr.Err != nil {
			rep.Error = pr.Err.Error()
			var pe *ocr.PassError
			if errors.As(pr.Err, &pe) {
				rep.TimedOut = pe.Timeout()
			}
		}
		out = append(out, rep)
	}
	return out
}

// String renders a one-line summary of the result.
func (r *Result) String() string {
	s := fmt.Sprintf("%s: %s", r.DisplayName(), r.Status)
	if r.Reason != "" {
		s += " (" + r.Reason + ")"
	}
	return s
}
