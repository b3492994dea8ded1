package classpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFindsExactModuleAndClass(t *testing.T) {
	ResetCache()
	RegisterModule("steps.run", map[string]Class{"RunCommand": "runcommand-class"})

	name, class, err := Resolve("steps.run.RunCommand", nil)
	require.NoError(t, err)
	require.Equal(t, "steps.run", name)
	require.Equal(t, Class("runcommand-class"), class)
}

func TestResolveTriesNamespacesInOrder(t *testing.T) {
	ResetCache()
	RegisterModule("acme.steps", map[string]Class{"Wait": "acme-wait"})

	name, class, err := Resolve("steps.Wait", []string{"bogus", "acme"})
	require.NoError(t, err)
	require.Equal(t, "acme.steps", name)
	require.Equal(t, Class("acme-wait"), class)
}

func TestResolveSingleWildcardMatchesOneSegment(t *testing.T) {
	ResetCache()
	RegisterModule("steps.io.file", map[string]Class{"FileInput": "file-input"})
	RegisterModule("steps.io.net", map[string]Class{"FileInput": "net-input"})

	name, class, err := Resolve("steps.io.*.FileInput", nil)
	require.NoError(t, err)
	require.Contains(t, []string{"steps.io.file", "steps.io.net"}, name)
	require.Contains(t, []Class{Class("file-input"), Class("net-input")}, class)
}

func TestResolveDoubleWildcardMatchesDottedSequence(t *testing.T) {
	ResetCache()
	RegisterModule("steps.io.file.local", map[string]Class{"FileInput": "local-file-input"})

	name, class, err := Resolve("steps.**.FileInput", nil)
	require.NoError(t, err)
	require.Equal(t, "steps.io.file.local", name)
	require.Equal(t, Class("local-file-input"), class)
}

func TestResolveRejectsThreeConsecutiveAsterisks(t *testing.T) {
	ResetCache()
	_, _, err := Resolve("steps.***.FileInput", nil)
	require.Error(t, err)
}

func TestResolveRejectsBareLeadingWildcard(t *testing.T) {
	ResetCache()
	RegisterModule("steps.io", map[string]Class{"FileInput": "x"})

	_, _, err := Resolve("*.FileInput", nil)
	require.Error(t, err)
}

func TestResolveFailsWhenPrefixIsNotARealPackage(t *testing.T) {
	ResetCache()
	RegisterModule("steps.io", map[string]Class{"FileInput": "x"})

	_, _, err := Resolve("nosuch.FileInput", nil)
	require.Error(t, err)
}

func TestResolveReturnsClassLookupErrorWhenNothingMatches(t *testing.T) {
	ResetCache()
	RegisterModule("steps.io", map[string]Class{"FileInput": "x"})

	_, _, err := Resolve("steps.io.NoSuchClass", []string{"acme"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "NoSuchClass")
}

func TestResetCacheClearsRegistrations(t *testing.T) {
	ResetCache()
	RegisterModule("steps.io", map[string]Class{"FileInput": "x"})
	ResetCache()

	_, _, err := Resolve("steps.io.FileInput", nil)
	require.Error(t, err)
}
