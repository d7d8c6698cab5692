package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommand_GoldenScenarios(t *testing.T) {
	out, err := execute(t, "test", scenarioDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ counter\n")
	assert.Contains(t, out, "✓ dirty\n")
	assert.Contains(t, out, "✓ parallel\n")
	assert.Contains(t, out, "✓ tags\n")
	assert.Contains(t, out, "4 passed, 0 failed, 4 total")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, "test", "--format", "json", scenarioDir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Passed)

	golden := make(map[string]string)
	for _, s := range resp.Data.Scenarios {
		golden[s.Name] = s.Golden
	}
	assert.Equal(t, map[string]string{
		"counter":  "match",
		"dirty":    "match",
		"parallel": "skipped",
		"tags":     "match",
	}, golden)
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", "--filter", "c*", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_UpdateThenMatch(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join(scenarioDir, "counter.yaml"))
	require.NoError(t, err)
	writeScenario(t, dir, "counter.yaml", string(src))

	out, err := execute(t, "test", "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter (golden updated)")

	want, err := os.ReadFile(filepath.Join(scenarioDir, "golden", "counter.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "golden", "counter.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	_, err = execute(t, "test", dir)
	require.NoError(t, err)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join(scenarioDir, "counter.yaml"))
	require.NoError(t, err)
	writeScenario(t, dir, "counter.yaml", string(src))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "counter.golden"), []byte("{}"), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "failing.yaml", failingScenario)
	writeScenario(t, dir, "broken.yaml", "name: broken\nmerge: sum\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml\n  failed to load scenario")
	assert.Contains(t, out, "✗ failing\n  data of A: expected 3, got 2")
	assert.Contains(t, out, "0 passed, 2 failed, 2 total")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}
