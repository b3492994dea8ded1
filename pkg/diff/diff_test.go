package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUnifiedDiffIdenticalContentIsEmpty(t *testing.T) {
	t.Parallel()
	expected := []byte("line1\nline2\nline3\n")
	actual := []byte("line1\nline2\nline3\n")

	require.Empty(t, GenerateUnifiedDiff(expected, actual, "expected", "actual"))
}

func TestGenerateUnifiedDiffSingleLineChange(t *testing.T) {
	t.Parallel()
	expected := []byte("line1\nline2\nline3\n")
	actual := []byte("line1\nmodified\nline3\n")

	result := GenerateUnifiedDiff(expected, actual, "expected", "actual")
	require.NotEmpty(t, result)
	require.Contains(t, result, "---")
	require.Contains(t, result, "+++")
	require.Contains(t, result, "-line2")
	require.Contains(t, result, "+modified")
}

func TestGenerateUnifiedDiffMultiLineChanges(t *testing.T) {
	t.Parallel()
	expected := []byte("line1\nline2\nline3\nline4\nline5\n")
	actual := []byte("line1\nmodified2\nmodified3\nline4\nline5\n")

	result := GenerateUnifiedDiff(expected, actual, "expected.txt", "actual.txt")
	require.NotEmpty(t, result)
	require.Contains(t, result, " line1")
	require.Contains(t, result, " line4")
	require.Contains(t, result, "modified")
	require.Contains(t, result, "-")
	require.Contains(t, result, "+")
}

func TestGenerateUnifiedDiffTruncatesPastMaxLines(t *testing.T) {
	t.Parallel()
	var expectedLines, actualLines []string
	for i := 0; i < 11000; i++ {
		expectedLines = append(expectedLines, "expected line")
		if i%2 == 0 {
			actualLines = append(actualLines, "actual line")
		} else {
			actualLines = append(actualLines, "expected line")
		}
	}

	result := GenerateUnifiedDiff([]byte(strings.Join(expectedLines, "\n")), []byte(strings.Join(actualLines, "\n")), "expected", "actual")
	require.NotEmpty(t, result)
	require.Contains(t, result, "truncated")
	require.LessOrEqual(t, strings.Count(result, "\n"), 10100)
}

func TestGenerateUnifiedDiffEmptyContent(t *testing.T) {
	t.Parallel()
	result := GenerateUnifiedDiff([]byte(""), []byte("new content\n"), "expected", "actual")
	require.Contains(t, result, "+new content")
}

func TestGenerateUnifiedDiffLabels(t *testing.T) {
	t.Parallel()
	result := GenerateUnifiedDiff([]byte("old"), []byte("new"), "file1.txt", "file2.txt")
	require.Contains(t, result, "--- file1.txt")
	require.Contains(t, result, "+++ file2.txt")
}
