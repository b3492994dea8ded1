package field

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

var stringType = reflect.TypeOf("")

var errPrefixMismatch = errors.New("prefix mismatch")

func TestBuildRequiresMandatoryField(t *testing.T) {
	t.Parallel()

	table := Table{{Name: "url", Type: stringType}}

	_, err := Build(table, nil, map[string]any{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "url")
}

func TestBuildAppliesDefaultWhenOptionalAndAbsent(t *testing.T) {
	t.Parallel()

	table := Table{{Name: "retries", Optional: true, Default: 3}}

	out, err := Build(table, nil, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, 3, out["retries"])
}

func TestBuildRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	table := Table{{Name: "url", Type: stringType}}

	_, err := Build(table, nil, map[string]any{"url": "x", "bogus": 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus")
}

func TestBuildRejectsWrongType(t *testing.T) {
	t.Parallel()

	table := Table{{Name: "url", Type: stringType}}

	_, err := Build(table, nil, map[string]any{"url": 42})
	require.Error(t, err)
}

func TestBuildRunsValidatorAgainstOwner(t *testing.T) {
	t.Parallel()

	type target struct{ prefix string }
	owner := &target{prefix: "https://"}

	validate := func(owner any, value any) error {
		o := owner.(*target)
		s := value.(string)
		if len(s) < len(o.prefix) || s[:len(o.prefix)] != o.prefix {
			return errPrefixMismatch
		}
		return nil
	}

	table := Table{{Name: "url", Type: stringType, Validator: validate}}

	_, err := Build(table, owner, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)

	_, err = Build(table, owner, map[string]any{"url": "ftp://example.com"})
	require.ErrorIs(t, err, errPrefixMismatch)
}

func TestBuildValidatesListElements(t *testing.T) {
	t.Parallel()

	table := Table{{Name: "names", List: true, Type: stringType}}

	_, err := Build(table, nil, map[string]any{"names": []any{"a", 1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "names[1]")
}

func TestCopyDefaultIsIndependent(t *testing.T) {
	t.Parallel()

	defaultSlice := []any{"a", "b"}
	table := Table{{Name: "tags", Optional: true, Default: defaultSlice}}

	out1, err := Build(table, nil, map[string]any{})
	require.NoError(t, err)
	out2, err := Build(table, nil, map[string]any{})
	require.NoError(t, err)

	out1["tags"].([]any)[0] = "mutated"
	require.Equal(t, "a", out2["tags"].([]any)[0])
}
