package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cardex/internal/confidence"
	"github.com/MeKo-Tech/cardex/internal/ocr"
	"github.com/MeKo-Tech/cardex/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"en", "jp", "vi"}, cfg.Languages)
	assert.Equal(t, 0.5, cfg.Fusion.IoUThreshold)
	assert.Equal(t, 0.3, cfg.Runner.MinConfidence)
	assert.False(t, cfg.Preprocess.Enabled)
}

func TestBuilder_Options(t *testing.T) {
	b := NewBuilder().
		WithLanguages("vi", "", "en").
		WithPassTimeout(time.Second).
		WithMinTokenConfidence(0.5).
		WithMaxParallelPasses(2).
		WithIoUThreshold(0.7).
		WithLineTolerance(0.8).
		WithLanguagePriority("vi", "en").
		WithAITimeout(5 * time.Second).
		WithRetryBackoff(time.Millisecond).
		WithWeights(confidence.Weights{OCR: 1, Structuring: 3}).
		WithParallelWorkers(3)

	cfg := b.Config()
	assert.Equal(t, []string{"vi", "en"}, cfg.Languages)
	assert.Equal(t, time.Second, cfg.Runner.PassTimeout)
	assert.Equal(t, 0.5, cfg.Runner.MinConfidence)
	assert.Equal(t, 2, cfg.Runner.MaxParallel)
	assert.Equal(t, 0.7, cfg.Fusion.IoUThreshold)
	assert.Equal(t, 0.8, cfg.Fusion.LineTolerance)
	assert.Equal(t, []string{"vi", "en"}, cfg.Fusion.LanguagePriority)
	assert.Equal(t, 5*time.Second, cfg.Structuring.Timeout)
	assert.Equal(t, time.Millisecond, cfg.Structuring.RetryBackoff)
	assert.Equal(t, 3.0, cfg.Weights.Structuring)
	assert.Equal(t, 3, cfg.Parallel.MaxWorkers)
}

func TestBuilder_IgnoresInvalidValues(t *testing.T) {
	def := DefaultConfig()
	cfg := NewBuilder().
		WithLanguages().
		WithIoUThreshold(0).
		WithLineTolerance(-1).
		WithAITimeout(0).
		WithParallelWorkers(0).
		Config()
	assert.Equal(t, def.Languages, cfg.Languages)
	assert.Equal(t, def.Fusion.IoUThreshold, cfg.Fusion.IoUThreshold)
	assert.Equal(t, def.Fusion.LineTolerance, cfg.Fusion.LineTolerance)
	assert.Equal(t, def.Structuring.Timeout, cfg.Structuring.Timeout)
	assert.Equal(t, def.Parallel.MaxWorkers, cfg.Parallel.MaxWorkers)
}

func TestBuilder_BuildValidates(t *testing.T) {
	_, err := NewBuilder().WithMinTokenConfidence(1.5).Build()
	require.Error(t, err)

	_, err = NewBuilder().WithIoUThreshold(2).Build()
	require.Error(t, err)

	_, err = NewBuilder().WithWeights(confidence.Weights{}).Build()
	require.Error(t, err)
}

func TestBuilder_SharedRegistry(t *testing.T) {
	engines := testutil.Engines{"en": {}}
	reg := ocr.NewRegistry(engines.Factory())
	p, err := NewBuilder().WithRegistry(reg).WithLogger(quietLogger).Build()
	require.NoError(t, err)
	assert.Nil(t, p.Metrics())
	require.NoError(t, p.Close())

	var nilPipeline *Pipeline
	assert.NoError(t, nilPipeline.Close())
}
