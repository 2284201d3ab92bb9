package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Path names which structuring path produced the record.
type Path string

const (
	PathAI       Path = "ai"
	PathFallback Path = "fallback"
)

// Config configures the structuring engine.
type Config struct {
	Model        string        `json:"model" yaml:"model"`
	Prompt       string        `json:"prompt" yaml:"prompt"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`             // per attempt
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"` // before the single retry
	AIConfidence float64       `json:"ai_confidence" yaml:"ai_confidence"`
	Rules        RulesConfig   `json:"rules" yaml:"rules"`
}

// DefaultConfig returns the structuring defaults.
func DefaultConfig() Config {
	return Config{
		Prompt:       DefaultPrompt,
		Timeout:      30 * time.Second,
		RetryBackoff: 500 * time.Millisecond,
		AIConfidence: 0.9,
		Rules:        DefaultRulesConfig(),
	}
}

// Validate checks ranges and keyword lists.
func (c Config) Validate() error {
	if c.Timeout < 0 || c.RetryBackoff < 0 {
		return errors.New("timeout and retry_backoff must not be negative")
	}
	if math.IsNaN(c.AIConfidence) || c.AIConfidence <= 0 || c.AIConfidence > 1 {
		return fmt.Errorf("ai_confidence must be in (0,1], got %v", c.AIConfidence)
	}
	return c.Rules.Validate()
}

// Structured is the outcome of one structuring call.
type Structured struct {
	Record   *ContactRecord
	Path     Path
	Outcome  AIOutcome
	Attempts int
	// AIErr describes why the AI path was not used; nil on OutcomeOK.
	AIErr error
}

// Confidence is the mean confidence of the extracted fields.
func (s Structured) Confidence() float64 { return s.Record.MeanConfidence() }

// Engine turns fused card text into a ContactRecord.
type Engine struct {
	client AIClient
	cfg    Config
	rules  []Rule
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a structuring engine. A nil client disables the AI path
// and every request is served by the fallback rules.
func NewEngine(client AIClient, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	return &Engine{
		client: client,
		cfg:    cfg,
		rules:  DefaultRules(cfg.Rules),
		logger: logger,
		sleep:  sleepContext,
	}
}

// Structure extracts a record from text. The only error it returns is the
// context's when ctx is canceled; every AI failure is recovered by the
// fallback rules.
func (e *Engine) Structure(ctx context.Context, text string) (Structured, error) {
	values, attempts, aiErr := e.primary(ctx, text)
	if err := ctx.Err(); err != nil {
		return Structured{}, err
	}

	outcome := OutcomeOK
	var ae *AIError
	if errors.As(aiErr, &ae) {
		outcome = ae.Outcome
	}

	if outcome == OutcomeOK {
		return Structured{
			Record:   recordFromAI(values, e.cfg.AIConfidence),
			Path:     PathAI,
			Outcome:  outcome,
			Attempts: attempts,
		}, nil
	}

	e.logger.Info("Using fallback extraction",
		"outcome", outcome.String(),
		"attempts", attempts,
		"error", aiErr)
	return Structured{
		Record:   e.Fallback(text),
		Path:     PathFallback,
		Outcome:  outcome,
		Attempts: attempts,
		AIErr:    aiErr,
	}, nil
}

// primary runs the AI path. Only an unreachable outcome is retried, once.
func (e *Engine) primary(ctx context.Context, text string) (map[string]string, int, error) {
	if e.client == nil {
		return nil, 0, &AIError{Outcome: OutcomeDisabled, Err: errors.New("no AI client configured")}
	}

	values, err := e.attempt(ctx, text)
	attempts := 1
	var ae *AIError
	if errors.As(err, &ae) && ae.Outcome == OutcomeUnreachable && ctx.Err() == nil {
		e.logger.Warn("AI structuring unreachable, retrying",
			"backoff_ms", e.cfg.RetryBackoff.Milliseconds(),
			"error", ae.Err)
		if serr := e.sleep(ctx, e.cfg.RetryBackoff); serr != nil {
			return nil, attempts, serr
		}
		values, err = e.attempt(ctx, text)
		attempts++
	}
	return values, attempts, err
}

func (e *Engine) attempt(ctx context.Context, text string) (map[string]string, error) {
	actx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := e.client.Complete(actx, Request{Text: text, Prompt: e.cfg.Prompt, Model: e.cfg.Model})
	e.logger.Debug("AI structuring call finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil)
	if err != nil {
		return nil, &AIError{Outcome: OutcomeUnreachable, Err: err}
	}

	values, err := ParseResponse(raw)
	if err != nil {
		return nil, &AIError{Outcome: OutcomeMalformed, Err: err}
	}
	if len(values) == 0 {
		return nil, &AIError{Outcome: OutcomeEmpty, Err: errors.New("every value is null")}
	}
	if !hasExtractable(values) {
		return nil, &AIError{Outcome: OutcomeEmpty, Err: errors.New("only the other field is set")}
	}
	return values, nil
}

// hasExtractable reports whether values sets a field other than the
// catch-all, which never counts as extracted.
func hasExtractable(values map[string]string) bool {
	for k := range values {
		if k != FieldOther {
			return true
		}
	}
	return false
}

// Fallback applies the rule list to text. Each field keeps the first value
// any rule produced for it; fields no rule matched stay nil.
func (e *Engine) Fallback(text string) *ContactRecord {
	return ApplyRules(e.rules, splitLines(text))
}

// ApplyRules runs rules in order over lines and assembles a record.
func ApplyRules(rules []Rule, lines []string) *ContactRecord {
	rec := &ContactRecord{}
	claimed := make([]bool, len(lines))
	for _, r := range rules {
		matches := r.Apply(lines, claimed)
		for _, m := range matches {
			if rec.Get(m.Field) == nil {
				_ = rec.Set(m.Field, &Field{Value: m.Value, Source: SourceFallback, Confidence: m.Confidence})
			}
		}
		if !r.Claims {
			continue
		}
		for _, m := range matches {
			if m.Line >= 0 && m.Line < len(claimed) {
				claimed[m.Line] = true
			}
		}
	}
	return rec
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
