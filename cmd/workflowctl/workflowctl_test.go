package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
steps:
  source:
    class: steps.BufferInput
    data: "hello"
  sink:
    class: steps.StdoutOutput
    input_step: source
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	return path
}

func TestValidateCommandAcceptsWellFormedConfig(t *testing.T) {
	cfgPath := writeSampleConfig(t)

	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"validate", "--config", cfgPath})

	require.NoError(t, root.Execute())
	require.Contains(t, buf.String(), "2 step(s)")
}

func TestValidateCommandRejectsDanglingReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
steps:
  sink:
    class: steps.StdoutOutput
    input_step: missing
`), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"validate", "--config", path})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestRunCommandDryRunCompletesWithoutError(t *testing.T) {
	cfgPath := writeSampleConfig(t)

	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"run", "--config", cfgPath, "--dry-run"})

	require.NoError(t, root.Execute())
}

func TestRunCommandRejectsUnknownFailurePolicy(t *testing.T) {
	cfgPath := writeSampleConfig(t)

	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", cfgPath, "--on-failure", "nonsense"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "nonsense")
}

func TestGraphCommandPrintsDotByDefault(t *testing.T) {
	cfgPath := writeSampleConfig(t)

	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"graph", "--config", cfgPath})

	require.NoError(t, root.Execute())
	out := buf.String()
	require.Contains(t, out, "digraph workflow")
	require.Contains(t, out, `"source"`)
	require.Contains(t, out, `"sink"`)
}

func TestRunCommandPrintsDiffForOverwrittenFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(outPath, []byte("old content"), 0o644))

	cfgPath := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
steps:
  source:
    class: steps.BufferInput
    data: "new content"
  sink:
    class: steps.FileOutput
    input_step: source
    path: `+outPath+`
`), 0o644))

	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"run", "--config", cfgPath})

	require.NoError(t, root.Execute())
	require.Contains(t, buf.String(), "diff for sink")
	require.Contains(t, buf.String(), "-old content")
	require.Contains(t, buf.String(), "+new content")

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "new content", string(got))
}

func TestGraphCommandPrintsJSONWaves(t *testing.T) {
	cfgPath := writeSampleConfig(t)

	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"graph", "--config", cfgPath, "--format", "json"})

	require.NoError(t, root.Execute())
	require.Contains(t, buf.String(), `"source"`)
}
