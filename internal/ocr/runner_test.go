package ocr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tok(text string, conf float64, x1, y1, x2, y2 float64) Token {
	return Token{Text: text, Confidence: conf, Box: QuadFromRect(x1, y1, x2, y2)}
}

func staticEngine(tokens ...Token) Engine {
	return EngineFunc(func(ctx context.Context, img Image) ([]Token, error) {
		return tokens, nil
	})
}

func failingEngine(err error) Engine {
	return EngineFunc(func(ctx context.Context, img Image) ([]Token, error) {
		return nil, err
	})
}

func blockingEngine() Engine {
	return EngineFunc(func(ctx context.Context, img Image) ([]Token, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestRunner_AllPassesSucceed(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil)
	set, err := r.Run(context.Background(), Image{Format: "png"}, []LanguageProfile{
		{Code: "en", Engine: staticEngine(tok("John", 0.9, 0, 0, 40, 10))},
		{Code: "vi", Engine: staticEngine(tok("John", 0.8, 0, 0, 40, 10), tok("Smith", 0.7, 45, 0, 90, 10))},
	})
	require.NoError(t, err)
	require.Len(t, set, 2)

	assert.Equal(t, "en", set[0].Language)
	assert.Len(t, set[0].Tokens, 1)
	assert.Equal(t, "vi", set[1].Language)
	assert.Len(t, set[1].Tokens, 2)
	assert.Equal(t, 3, set.TokenCount())
	assert.Empty(t, set.Failures())

	for _, p := range set {
		for _, tk := range p.Tokens {
			assert.Equal(t, p.Language, tk.Language, "token language is stamped from the pass")
		}
	}
}

func TestRunner_OnePassFails(t *testing.T) {
	boom := errors.New("engine crashed")
	r := NewRunner(DefaultRunnerConfig(), nil)
	set, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: staticEngine(tok("hello", 0.9, 0, 0, 10, 10))},
		{Code: "jp", Engine: failingEngine(boom)},
	})
	require.NoError(t, err)

	failures := set.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "jp", failures[0].Language)
	assert.ErrorIs(t, failures[0], boom)
	assert.False(t, failures[0].Timeout())
	assert.Empty(t, set[1].Tokens)
}

func TestRunner_AllPassesFail(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil)
	set, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: failingEngine(errors.New("a"))},
		{Code: "vi", Engine: nil},
	})
	require.ErrorIs(t, err, ErrAllPassesFailed)
	require.Len(t, set, 2)
	assert.Len(t, set.Failures(), 2)
}

func TestRunner_NoProfiles(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil)
	_, err := r.Run(context.Background(), Image{}, nil)
	require.ErrorIs(t, err, ErrAllPassesFailed)
	require.ErrorIs(t, err, ErrNoProfiles)
}

func TestRunner_PassTimeout(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.PassTimeout = 20 * time.Millisecond
	r := NewRunner(cfg, nil)

	start := time.Now()
	set, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: staticEngine(tok("ok", 0.9, 0, 0, 10, 10))},
		{Code: "jp", Engine: blockingEngine()},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	failures := set.Failures()
	require.Len(t, failures, 1)
	assert.True(t, failures[0].Timeout())
	assert.ErrorIs(t, failures[0], context.DeadlineExceeded)
}

func TestRunner_EngineIgnoringContextIsCutOff(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.PassTimeout = 20 * time.Millisecond
	r := NewRunner(cfg, nil)

	release := make(chan struct{})
	defer close(release)
	stubborn := EngineFunc(func(ctx context.Context, img Image) ([]Token, error) {
		<-release
		return nil, nil
	})

	set, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: stubborn},
	})
	require.ErrorIs(t, err, ErrAllPassesFailed)
	assert.True(t, set.Failures()[0].Timeout())
}

func TestRunner_EnginePanicBecomesPassFailure(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil)
	set, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: EngineFunc(func(ctx context.Context, img Image) ([]Token, error) {
			panic("bad model")
		})},
		{Code: "vi", Engine: staticEngine(tok("x", 0.9, 0, 0, 5, 5))},
	})
	require.NoError(t, err)
	require.Len(t, set.Failures(), 1)
	assert.Contains(t, set.Failures()[0].Error(), "bad model")
}

func TestRunner_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(DefaultRunnerConfig(), nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	set, err := r.Run(ctx, Image{}, []LanguageProfile{
		{Code: "en", Engine: blockingEngine()},
		{Code: "vi", Engine: blockingEngine()},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, set)
}

func TestRunner_FiltersTokens(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil)
	set, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: staticEngine(
			tok("  keep\u200b  me ", 0.9, 0, 0, 10, 10),
			tok("low", 0.1, 0, 20, 10, 30),
			tok("   ", 0.9, 0, 40, 10, 50),
			tok("flat", 0.9, 0, 60, 10, 60),
			tok("over", 1.5, 0, 70, 10, 80),
		)},
	})
	require.NoError(t, err)
	require.Len(t, set[0].Tokens, 1)
	assert.Equal(t, "keep me", set[0].Tokens[0].Text)
	assert.Equal(t, 4, set[0].Dropped)
}

func TestRunner_MaxParallelBoundsConcurrency(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxParallel = 1
	r := NewRunner(cfg, nil)

	var inFlight, peak int32
	eng := EngineFunc(func(ctx context.Context, img Image) ([]Token, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return []Token{tok("a", 0.9, 0, 0, 5, 5)}, nil
	})

	_, err := r.Run(context.Background(), Image{}, []LanguageProfile{
		{Code: "en", Engine: eng}, {Code: "jp", Engine: eng}, {Code: "vi", Engine: eng},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestRegistry_CachesEngines(t *testing.T) {
	var built int32
	reg := NewRegistry(func(code string) (Engine, error) {
		atomic.AddInt32(&built, 1)
		return staticEngine(tok(code, 0.9, 0, 0, 5, 5)), nil
	})

	a, err := reg.Get("en")
	require.NoError(t, err)
	b, err := reg.Get("en")
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.NotNil(t, b)
	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
	assert.Equal(t, []string{"en"}, reg.Languages())
}

func TestRegistry_FactoryFailureIsPassFailure(t *testing.T) {
	reg := NewRegistry(func(code string) (Engine, error) {
		if code == "jp" {
			return nil, errors.New("missing traineddata")
		}
		return staticEngine(tok("hi", 0.9, 0, 0, 5, 5)), nil
	})

	r := NewRunner(DefaultRunnerConfig(), nil)
	set, err := r.Run(context.Background(), Image{}, reg.Profiles([]string{"en", "jp"}))
	require.NoError(t, err)
	require.Len(t, set.Failures(), 1)
	assert.Equal(t, "jp", set.Failures()[0].Language)
	assert.Contains(t, set.Failures()[0].Error(), "missing traineddata")
}

type closingEngine struct {
	closed *int32
}

func (c closingEngine) Recognize(ctx context.Context, img Image) ([]Token, error) { return nil, nil }
func (c closingEngine) Close() error {
	atomic.AddInt32(c.closed, 1)
	return nil
}

func TestRegistry_Close(t *testing.T) {
	var closed int32
	reg := NewRegistry(func(code string) (Engine, error) {
		return closingEngine{closed: &closed}, nil
	})
	_, _ = reg.Get("en")
	_, _ = reg.Get("vi")

	require.NoError(t, reg.Close())
	assert.Equal(t, int32(2), closed)
	assert.Empty(t, reg.Languages())
}
