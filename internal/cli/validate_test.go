package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	out, err := execute(t, "validate", scenarioDir+"/counter.yaml", scenarioDir+"/tags.cue")
	require.NoError(t, err)

	assert.Equal(t, "✓ "+scenarioDir+"/counter.yaml\n✓ "+scenarioDir+"/tags.cue\n", out)
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := writeScenario(t, dir, "cycle.yaml", `
name: cycle
merge: sum
nodes:
  - {ref: A, kind: aggregating}
  - {ref: B, kind: aggregating}
links:
  - {lower: A, upper: B}
  - {lower: B, upper: A}
steps:
  - {node: A, change: 1}
`)
	broken := writeScenario(t, dir, "broken.yaml", "name: [unterminated\n")

	out, err := execute(t, "validate", bad, broken)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "[E209] links: links form a cycle through A, B")
	assert.Contains(t, out, "✗ "+broken)
	assert.Contains(t, out, "[E200] file:")
}

func TestValidateCommand_JSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "unknown.yaml", `
name: unknown
merge: sum
nodes:
  - {ref: A, kind: aggregating}
steps:
  - {node: Z, change: 1}
`)

	out, err := execute(t, "validate", "--format", "json", path)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []FileValidation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.False(t, resp.Data[0].Valid)
	require.Len(t, resp.Data[0].Errors, 1)
	assert.Equal(t, "E207", resp.Data[0].Errors[0].Code)
	assert.Equal(t, "steps[0].node", resp.Data[0].Errors[0].Field)
}

func TestValidateCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
