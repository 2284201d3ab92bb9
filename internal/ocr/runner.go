package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrAllPassesFailed is returned by Runner.Run when every configured
// language pass failed.
var ErrAllPassesFailed = errors.New("all OCR passes failed")

// ErrNoProfiles is wrapped into ErrAllPassesFailed when nothing was configured.
var ErrNoProfiles = errors.New("no language profiles configured")

// PassError reports one failed language pass. It never aborts the run.
type PassError struct {
	Language string
	Err      error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("ocr pass %q failed: %v", e.Language, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Timeout reports whether the pass was cut off by its deadline.
func (e *PassError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// RunnerConfig configures the pass runner.
type RunnerConfig struct {
	PassTimeout   time.Duration // per-pass deadline; 0 disables
	MinConfidence float64       // tokens below are dropped
	MaxParallel   int           // concurrent passes; 0 = one goroutine per profile
	Clean         CleanOptions
}

// DefaultRunnerConfig returns the runner defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PassTimeout:   30 * time.Second,
		MinConfidence: 0.3,
		MaxParallel:   0,
		Clean:         DefaultCleanOptions(),
	}
}

// PassResult is the outcome of one language pass. A failed pass has an
// empty token list and a non-nil Err.
type PassResult struct {
	Language string
	Tokens   []Token
	Dropped  int // tokens removed by filtering
	Err      error
	Duration time.Duration
}

// PassSet holds the results of all passes in profile order.
type PassSet []PassResult

// TokenLists returns the per-language token lists in profile order.
func (s PassSet) TokenLists() [][]Token {
	out := make([][]Token, len(s))
	for i, p := range s {
		out[i] = p.Tokens
	}
	return out
}

// TokenCount returns the total number of tokens across passes.
func (s PassSet) TokenCount() int {
	n := 0
	for _, p := range s {
		n += len(p.Tokens)
	}
	return n
}

// Failures returns the pass errors in profile order.
func (s PassSet) Failures() []*PassError {
	var out []*PassError
	for _, p := range s {
		var pe *PassError
		if errors.As(p.Err, &pe) {
			out = append(out, pe)
		}
	}
	return out
}

// Runner executes one OCR pass per language profile.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a pass runner. A nil logger uses slog.Default().
func NewRunner(cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run invokes every profile's engine once against img. Passes run
// concurrently and each writes only its own slot of the returned PassSet.
// Individual failures are recorded in the set; if all passes fail the set is
// returned together with ErrAllPassesFailed. Cancellation of ctx returns
// ctx.Err() and no results.
func (r *Runner) Run(ctx context.Context, img Image, profiles []LanguageProfile) (PassSet, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllPassesFailed, ErrNoProfiles)
	}

	results := make(PassSet, len(profiles))
	var g errgroup.Group
	if r.cfg.MaxParallel > 0 {
		g.SetLimit(r.cfg.MaxParallel)
	}
	for i, prof := range profiles {
		g.Go(func() error {
			results[i] = r.runPass(ctx, img, prof)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed == len(results) {
		return results, ErrAllPassesFailed
	}
	return results, nil
}

// runPass runs a single engine under the per-pass deadline. The engine call
// happens on its own goroutine so that an engine ignoring ctx cannot hold the
// barrier past the deadline.
func (r *Runner) runPass(ctx context.Context, img Image, prof LanguageProfile) PassResult {
	start := time.Now()
	res := PassResult{Language: prof.Code}

	if prof.Engine == nil {
		res.Err = &PassError{Language: prof.Code, Err: errors.New("no engine bound")}
		r.logFailure(res)
		return res
	}

	passCtx := ctx
	if r.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, r.cfg.PassTimeout)
		defer cancel()
	}

	type outcome struct {
		tokens []Token
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("engine panic: %v", p)}
			}
		}()
		toks, err := prof.Engine.Recognize(passCtx, img)
		done <- outcome{tokens: toks, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-passCtx.Done():
		out = outcome{err: passCtx.Err()}
	}
	res.Duration = time.Since(start)

	if out.err != nil {
		res.Err = &PassError{Language: prof.Code, Err: out.err}
		if ctx.Err() == nil {
			r.logFailure(res)
		}
		return res
	}

	res.Tokens, res.Dropped = r.filter(prof.Code, out.tokens)
	r.logger.Debug("OCR pass completed",
		"language", prof.Code,
		"tokens", len(res.Tokens),
		"dropped", res.Dropped,
		"duration_ms", res.Duration.Milliseconds())
	return res
}

// filter cleans token text, stamps the pass language and drops tokens that
// violate the token invariants or fall below the confidence floor.
func (r *Runner) filter(lang string, in []Token) ([]Token, int) {
	out := make([]Token, 0, len(in))
	for _, t := range in {
		t.Text = CleanText(t.Text, r.cfg.Clean)
		t.Language = lang
		if err := t.Validate(); err != nil {
			r.logger.Debug("Dropping invalid token", "language", lang, "text", t.Text, "reason", err)
			continue
		}
		if t.Confidence < r.cfg.MinConfidence {
			continue
		}
		out = append(out, t)
	}
	return out, len(in) - len(out)
}

func (r *Runner) logFailure(res PassResult) {
	var pe *PassError
	timeout := errors.As(res.Err, &pe) && pe.Timeout()
	r.logger.Warn("OCR language pass failed",
		"language", res.Language,
		"timeout", timeout,
		"error", res.Err)
}
