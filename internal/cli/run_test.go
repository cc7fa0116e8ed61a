package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pulse/internal/store"
)

func TestRunPassingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "two_steps.yaml", passingScenario)

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: two_steps")
	assert.Contains(t, out, "Chain: cli-1")
	assert.Contains(t, out, "Emitted: one -> two -> end")
	assert.Contains(t, out, "Ended: true")
	assert.Contains(t, out, "✓ passed")
}

func TestRunFailingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "wrong_order.yaml", failingScenario)

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "trace_exact")
}

func TestRunJSONOutput(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "two_steps.yaml", passingScenario)

	out, err := execute(NewRunCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Chain  string    `json:"chain"`
		Data   RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cli-1", resp.Chain)
	assert.Equal(t, []string{"one", "two", "end"}, resp.Data.Emitted)
	assert.True(t, resp.Data.Pass)
}

func TestRunMissingFile(t *testing.T) {
	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestRunSchemaViolation(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "bad.yaml", "name: bad\nchain: 42\n")

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
}

func TestRunStoresTrace(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "two_steps.yaml", passingScenario)
	dbPath := filepath.Join(dir, "pulse.db")

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "nightly", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored: ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	chains, err := st.ListChains(context.Background(), "nightly")
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, "cli-1", chains[0].Token)
	assert.True(t, chains[0].Ended)

	events, err := st.ReadTrace(context.Background(), "nightly", "cli-1")
	require.NoError(t, err)
	assert.Equal(t, chains[0].Events, len(events))
}

func TestRunStoresSameScenarioUnderTwoRuns(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "two_steps.yaml", passingScenario)
	dbPath := filepath.Join(dir, "pulse.db")

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "nightly-1", path)
	require.NoError(t, err)
	assert.Contains(t, out, `events (run "nightly-1")`)

	out, err = execute(NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "nightly-2", path)
	require.NoError(t, err)
	assert.Contains(t, out, `events (run "nightly-2")`)
	assert.NotContains(t, out, "Stored: 0")

	out, err = execute(NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "nightly-2", path)
	require.NoError(t, err)
	assert.Contains(t, out, `Stored: 0 events (run "nightly-2" already holds this trace)`)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	chains, err := st.ListChains(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, chains, 2)
	assert.Equal(t, "nightly-1", chains[0].Run)
	assert.Equal(t, "nightly-2", chains[1].Run)
	assert.Equal(t, chains[0].Events, chains[1].Events)
	assert.NotZero(t, chains[1].Events)

	out, err = execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--chain", "cli-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "pass --run")

	out, err = execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--chain", "cli-1", "--run", "nightly-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Chain: cli-1")
}

func TestRunDefaultRunName(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "two_steps.yaml", passingScenario)
	dbPath := filepath.Join(dir, "pulse.db")

	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, path)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	chains, err := st.ListChains(context.Background(), "two_steps")
	require.NoError(t, err)
	assert.Len(t, chains, 1)
}

func TestRunHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "--db")
	assert.Contains(t, buf.String(), "scenario.yaml")
}
