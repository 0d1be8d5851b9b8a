package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkallos/timeloom/internal/store"
)

const demoScenario = `
name: demo
description: a counter and a follower
horizon: 50
objects:
  - id: tick
    start: 0
    state: 0
    rule:
      kind: counter
      period: 10
      increment: 1
  - id: echo
    start: 0
    state: 0
    rule:
      kind: relay
      period: 10
      depends:
        - object: tick
          lag: 5
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeScenario(t, demoScenario)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeScenario(t, "name: broken\nhorizon: -5\nobjects: []\n")

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "INVALID")
}

func TestValidateCommand_JSON(t *testing.T) {
	path := writeScenario(t, demoScenario)

	out, err := execute(t, "validate", "--format", "json", path)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunCommand(t *testing.T) {
	path := writeScenario(t, demoScenario)

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "demo: 2 object(s)")
	assert.Contains(t, out, "horizon 50")
}

func TestRunCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunReplayTrace_EndToEnd(t *testing.T) {
	path := writeScenario(t, demoScenario)
	db := filepath.Join(t.TempDir(), "timeloom.db")

	out, err := execute(t, "run", "--db", db, path)
	require.NoError(t, err)
	assert.Contains(t, out, `saved as "demo"`)

	out, err = execute(t, "replay", "--db", db, path)
	require.NoError(t, err)
	assert.Contains(t, out, `matches snapshot "demo"`)

	out, err = execute(t, "trace", "--db", db, "--snapshot", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "tick")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "2 object(s)")

	out, err = execute(t, "trace", "--db", db, "--snapshot", "demo", "--object", "tick")
	require.NoError(t, err)
	assert.Contains(t, out, "tick")
	assert.NotContains(t, out, "echo")
}

func TestReplayCommand_DetectsDivergence(t *testing.T) {
	path := writeScenario(t, demoScenario)
	db := filepath.Join(t.TempDir(), "timeloom.db")

	_, err := execute(t, "run", "--db", db, path)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec("UPDATE histories SET hash = 'bogus' WHERE object_id = 'tick'")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "replay", "--db", db, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "diverges")
}

func TestTraceCommand_UnknownObject(t *testing.T) {
	path := writeScenario(t, demoScenario)
	db := filepath.Join(t.TempDir(), "timeloom.db")

	_, err := execute(t, "run", "--db", db, path)
	require.NoError(t, err)

	_, err = execute(t, "trace", "--db", db, "--snapshot", "demo", "--object", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
