package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cardex/internal/testutil"
	"github.com/MeKo-Tech/cardex/internal/version"
)

// isolate runs the test in an empty directory that is also HOME, so no real
// cardex.yaml or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func fakeEngines() testutil.Engines {
	return testutil.Engines{"en": {Tokens: testutil.Card(0.9,
		[]string{"Jane", "Doe"},
		[]string{"jane@acme.com"},
	)}}
}

func execute(t *testing.T, opts []Option, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(append([]Option{WithEngineFactory(fakeEngines().Factory())}, opts...)...)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "business card")
	assert.Contains(t, out, "Available Commands:")
	for _, name := range []string{"process", "batch", "config"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCommandVersion(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, nil, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.String())
}

func TestRootCommandInvalidFlag(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, nil, "process", "--invalid-flag", "x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestProcess_JSONWithAI(t *testing.T) {
	dir := isolate(t)
	card := testutil.WriteCard(t, dir, "jane.png", "Jane Doe", "jane@acme.com")
	ai := testutil.NewAI(testutil.AIReply{Text: `{"name":"Jane Doe","email":"jane@acme.com","company":"ACME"}`})

	out, _, err := execute(t, []Option{WithAIClient(ai)},
		"process", card, "--languages", "en", "--format", "json", "--log-level", "error")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "success", doc["status"])
	contact := doc["contact"].(map[string]any)
	assert.Equal(t, "Jane Doe", contact["name"])
	assert.Equal(t, "ACME", contact["company"])
	assert.Equal(t, 1, ai.Calls())
}

func TestProcess_NoAIWritesVCardFile(t *testing.T) {
	dir := isolate(t)
	card := testutil.WriteCard(t, dir, "jane.png", "Jane Doe")
	ai := testutil.NewAI(testutil.AIReply{Text: `{"name":"Never Used"}`})
	outFile := filepath.Join(dir, "jane.vcf")

	out, _, err := execute(t, []Option{WithAIClient(ai)},
		"process", card, "--languages", "en", "--no-ai", "-f", "vcf", "-o", outFile)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, ai.Calls())

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "BEGIN:VCARD\r\n"))
	assert.Contains(t, string(data), "EMAIL:jane@acme.com\r\n")
}

func TestProcess_UnreadableImage(t *testing.T) {
	dir := isolate(t)
	good := testutil.WriteCard(t, dir, "good.png", "Jane Doe")
	bad := testutil.WriteFile(t, dir, "bad.png", []byte("garbage"))

	out, stderr, err := execute(t, nil, "process", bad, good, "--languages", "en", "--no-ai")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 images could not be processed")
	assert.Contains(t, stderr, bad+": ")
	assert.Contains(t, out, "jane@acme.com")
}

func TestProcess_InvalidFormat(t *testing.T) {
	dir := isolate(t)
	card := testutil.WriteCard(t, dir, "jane.png", "Jane Doe")

	_, _, err := execute(t, nil, "process", card, "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestBatch_CSVWithMetrics(t *testing.T) {
	dir := isolate(t)
	scans := filepath.Join(dir, "scans")
	testutil.WriteCard(t, scans, "a.png", "Jane Doe")
	testutil.WriteCard(t, scans, "nested/b.jpg", "Jane Doe")
	metrics := filepath.Join(dir, "cardex.prom")

	out, _, err := execute(t, nil, "batch", scans,
		"--languages", "en", "--no-ai", "--format", "csv", "--quiet", "--workers", "2",
		"--metrics-file", metrics)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, filepath.Join(scans, "a.png"), rows[1][0])
	assert.Equal(t, "partial", rows[1][1])

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cardex_results_total")
	assert.Contains(t, string(data), "go_goroutines")
}

func TestBatch_NonRecursiveStats(t *testing.T) {
	dir := isolate(t)
	testutil.WriteCard(t, dir, "a.png", "Jane Doe")
	testutil.WriteCard(t, dir, "nested/b.png", "Jane Doe")

	out, stderr, err := execute(t, nil, "batch", dir,
		"--languages", "en", "--no-ai", "--recursive=false", "--progress=false", "--stats", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "# "))
	assert.Contains(t, stderr, "Total cards: 1")
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, nil, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to cardex.yaml")
	require.FileExists(t, filepath.Join(dir, "cardex.yaml"))

	_, _, err = execute(t, nil, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	_, _, err = execute(t, nil, "config", "init", "--force")
	require.NoError(t, err)

	t.Setenv("CARDEX_FUSION_IOU_THRESHOLD", "0.7")
	out, _, err = execute(t, nil, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# config file: ")
	assert.Contains(t, out, "cardex.yaml")
	assert.Contains(t, out, "iou_threshold: 0.7")
}

func TestConfigShow_FlagsAndConfigFile(t *testing.T) {
	dir := isolate(t)
	cfgFile := testutil.WriteFile(t, dir, "custom.yaml", []byte("languages: [vi]\nlog_format: text\n"))

	out, _, err := execute(t, nil, "config", "show", "--config", cfgFile, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "# config file: "+cfgFile)
	assert.Contains(t, out, "log_level: warn")
	assert.Contains(t, out, "log_format: text")
	assert.Contains(t, out, "- vi")
}

func TestConfigPaths(t *testing.T) {
	dir := isolate(t)
	out, _, err := execute(t, nil, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "xdg", "cardex"))
	assert.Contains(t, out, "environment prefix: CARDEX_")
}

func TestEnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := testutil.WriteFile(t, dir, "test.env", []byte("CARDEX_OUTPUT_FORMAT=yaml\n"))
	t.Cleanup(func() { _ = os.Unsetenv("CARDEX_OUTPUT_FORMAT") })

	out, _, err := execute(t, nil, "config", "show", "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "format: yaml")

	_, _, err = execute(t, nil, "config", "show", "--env-file", filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file")
}
