package steps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileOutputWritesInputContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	in := NewBufferInput("src", []byte("hello"))
	require.NoError(t, in.Run())

	out := NewFileOutput("out", in, path)
	require.NoError(t, out.Run())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.Empty(t, out.LastDiff())
}

func TestFileOutputCapturesDiffOnOverwrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content\n"), 0o644))

	in := NewBufferInput("src", []byte("new content\n"))
	require.NoError(t, in.Run())

	out := NewFileOutput("out", in, path)
	require.NoError(t, out.Run())

	require.Contains(t, out.LastDiff(), "-old content")
	require.Contains(t, out.LastDiff(), "+new content")

	var diffable Diffable = out
	require.NotEmpty(t, diffable.LastDiff())
}

func TestFileOutputNoDiffWhenContentUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("same"), 0o644))

	in := NewBufferInput("src", []byte("same"))
	require.NoError(t, in.Run())

	out := NewFileOutput("out", in, path)
	require.NoError(t, out.Run())

	require.Empty(t, out.LastDiff())
}
