package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStepsWithDependenciesAndKwargs(t *testing.T) {
	t.Parallel()
	src := `
steps:
  fetch:
    class: steps.RunCommand
    command: "curl -O https://example.com/data.json"
  load:
    class: steps.FileInput
    path: ./data.json
    dependencies: [fetch]
`
	doc, err := Parse("test.yaml", []byte(src))
	require.NoError(t, err)
	require.Len(t, doc.Steps, 2)

	load := doc.Steps["load"]
	require.Equal(t, "steps.FileInput", load.Class)
	require.Equal(t, []string{"fetch"}, load.Dependencies)
	require.Equal(t, "./data.json", load.Kwargs["path"])
}

func TestParseMissingClassIsValidationError(t *testing.T) {
	t.Parallel()
	src := `
steps:
  bad:
    path: ./data.json
`
	_, err := Parse("test.yaml", []byte(src))
	require.Error(t, err)
	require.Contains(t, err.Error(), "class")
}

func TestParseNamespacesAndExplicitDependencies(t *testing.T) {
	t.Parallel()
	src := `
__namespaces__: [acme.steps, shared]
__dependencies__:
  a: [b, c]
steps:
  a:
    class: steps.Wait
    duration: 1s
`
	doc, err := Parse("test.yaml", []byte(src))
	require.NoError(t, err)
	require.Equal(t, []string{"acme.steps", "shared"}, doc.Namespaces)
	require.Equal(t, []string{"b", "c"}, doc.Dependencies["a"])
	require.Equal(t, []string{"b", "c"}, doc.Steps["a"].Dependencies)
}

func TestParseExplicitDependenciesIgnoresUnknownStep(t *testing.T) {
	t.Parallel()
	src := `
__dependencies__:
  ghost: [a]
steps:
  a:
    class: steps.Wait
    duration: 1s
`
	doc, err := Parse("test.yaml", []byte(src))
	require.NoError(t, err)
	require.Empty(t, doc.Steps["a"].Dependencies)
}

func TestParseExplicitDependenciesCollidesWithStepLevelDependencies(t *testing.T) {
	t.Parallel()
	src := `
__dependencies__: {}
steps:
  a:
    class: steps.Wait
    duration: 1s
  b:
    class: steps.Wait
    duration: 1s
    dependencies: [a]
`
	_, err := Parse("test.yaml", []byte(src))
	require.Error(t, err)
	require.Contains(t, err.Error(), "b")
}

func TestParseCompilersListFormMarksLastAsRunFromHere(t *testing.T) {
	t.Parallel()
	src := `
compilers:
  - class: compilers.TemplateCompiler
  - class: compilers.OutputCompiler
steps: {}
`
	doc, err := Parse("test.yaml", []byte(src))
	require.NoError(t, err)
	require.True(t, doc.Compilers.IsList)
	require.Len(t, doc.Compilers.List, 2)
	require.False(t, doc.Compilers.List[0].RunFromHere)
	require.True(t, doc.Compilers.List[1].RunFromHere)
}

func TestParseCompilersMappingFormUsesInputStep(t *testing.T) {
	t.Parallel()
	src := `
compilers:
  render:
    class: compilers.TemplateCompiler
    input_step: raw_config
steps: {}
`
	doc, err := Parse("test.yaml", []byte(src))
	require.NoError(t, err)
	require.False(t, doc.Compilers.IsList)
	require.Equal(t, "raw_config", doc.Compilers.Mapping["render"].InputStep)
}

func TestParseSyntaxErrorReportsLine(t *testing.T) {
	t.Parallel()
	src := "steps:\n  a: [unterminated\n"
	_, err := Parse("bad.yaml", []byte(src))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "bad.yaml"))
}

func TestSortedStepNames(t *testing.T) {
	t.Parallel()
	doc := &Document{Steps: map[string]StepConfig{
		"zeta":  {},
		"alpha": {},
		"mu":    {},
	}}
	require.Equal(t, []string{"alpha", "mu", "zeta"}, doc.SortedStepNames())
}
