package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with HOME and XDG_CONFIG_HOME
// pointing at it, so no real cardex.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func writeYAML(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_NoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := NewLoaderWith(viper.New()).Load()
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, def.Languages, cfg.Languages)
	assert.Equal(t, def.OCR, cfg.OCR)
	assert.Equal(t, def.Fusion, cfg.Fusion)
	assert.Equal(t, def.Structuring, cfg.Structuring)
	assert.Equal(t, def.Rules, cfg.Rules)
	assert.Equal(t, def.Output, cfg.Output)
	assert.Empty(t, cfg.Batch.Include)
}

func TestLoad_FromWorkingDirectory(t *testing.T) {
	dir := isolate(t)
	writeYAML(t, filepath.Join(dir, "cardex.yaml"), `
log_level: debug
languages: [vi, en]
ocr:
  pass_timeout: 5s
fusion:
  iou_threshold: 0.6
structuring:
  provider: openai
  retry_backoff: 250ms
output:
  format: json
`)

	l := NewLoaderWith(viper.New())
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"vi", "en"}, cfg.Languages)
	assert.Equal(t, 5*time.Second, cfg.OCR.PassTimeout)
	assert.InDelta(t, 0.6, cfg.Fusion.IoUThreshold, 1e-9)
	assert.Equal(t, "openai", cfg.Structuring.Provider)
	assert.Equal(t, 250*time.Millisecond, cfg.Structuring.RetryBackoff)
	assert.Equal(t, "json", cfg.Output.Format)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.5, cfg.Fusion.LineTolerance, 1e-9)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, "cardex.yaml", filepath.Base(l.GetConfigFileUsed()))
}

func TestLoad_FromXDGDirectory(t *testing.T) {
	dir := isolate(t)
	writeYAML(t, filepath.Join(dir, "xdg", "cardex", "cardex.yaml"), "batch:\n  workers: 9\n")

	cfg, err := NewLoaderWith(viper.New()).Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Batch.Workers)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CARDEX_FUSION_IOU_THRESHOLD", "0.7")
	t.Setenv("CARDEX_LANGUAGES", "en,vi")
	t.Setenv("CARDEX_STRUCTURING_ENABLED", "false")
	t.Setenv("CARDEX_OCR_PASS_TIMEOUT", "1m")
	t.Setenv("CARDEX_BATCH_INCLUDE", "*.png,*.jpg")

	cfg, err := NewLoaderWith(viper.New()).Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.Fusion.IoUThreshold, 1e-9)
	assert.Equal(t, []string{"en", "vi"}, cfg.Languages)
	assert.False(t, cfg.Structuring.Enabled)
	assert.Equal(t, time.Minute, cfg.OCR.PassTimeout)
	assert.Equal(t, []string{"*.png", "*.jpg"}, cfg.Batch.Include)
}

func TestLoad_EnvironmentBeatsFile(t *testing.T) {
	dir := isolate(t)
	writeYAML(t, filepath.Join(dir, "cardex.yaml"), "log_level: warn\n")
	t.Setenv("CARDEX_LOG_LEVEL", "error")

	cfg, err := NewLoaderWith(viper.New()).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_ValidationFailure(t *testing.T) {
	dir := isolate(t)
	writeYAML(t, filepath.Join(dir, "cardex.yaml"), "fusion:\n  iou_threshold: 3\n")

	_, err := NewLoaderWith(viper.New()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")

	cfg, err := NewLoaderWith(viper.New()).LoadWithoutValidation()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, cfg.Fusion.IoUThreshold, 1e-9)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := isolate(t)
	writeYAML(t, filepath.Join(dir, "cardex.yaml"), "languages: [en\n")

	_, err := NewLoaderWith(viper.New()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadWithFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom", "my.yaml")
	writeYAML(t, path, "output:\n  format: vcard\n  details: true\n")

	l := NewLoaderWith(viper.New())
	cfg, err := l.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "vcard", cfg.Output.Format)
	assert.True(t, cfg.Output.Details)
	assert.Equal(t, path, l.GetConfigFileUsed())

	_, err = NewLoaderWith(viper.New()).LoadWithFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadWithFile_EmptyPathSearches(t *testing.T) {
	isolate(t)
	cfg, err := NewLoaderWith(viper.New()).LoadWithFileWithoutValidation("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	dir := isolate(t)
	var buf bytes.Buffer
	require.NoError(t, WriteDefaultConfig(&buf))
	assert.Contains(t, buf.String(), "pass_timeout: 30s")
	assert.Contains(t, buf.String(), "iou_threshold: 0.5")

	path := filepath.Join(dir, "generated.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	cfg, err := NewLoaderWith(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().OCR, cfg.OCR)
	assert.Equal(t, DefaultConfig().Structuring, cfg.Structuring)
}

func TestGetConfigSearchPaths(t *testing.T) {
	dir := isolate(t)
	paths := GetConfigSearchPaths()
	assert.Equal(t, []string{".", dir, filepath.Join(dir, "xdg", "cardex"), "/etc/cardex"}, paths)

	t.Setenv("XDG_CONFIG_HOME", "")
	paths = GetConfigSearchPaths()
	assert.Equal(t, filepath.Join(dir, ".config", "cardex"), paths[2])
}

func TestGetResolvedConfig(t *testing.T) {
	isolate(t)
	l := NewLoaderWith(viper.New())
	_, err := l.Load()
	require.NoError(t, err)

	settings := l.GetResolvedConfig()
	require.Contains(t, settings, "fusion")
	assert.Equal(t, 0.5, settings["fusion"].(map[string]any)["iou_threshold"])
}
