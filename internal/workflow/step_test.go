package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// trivialStep is a minimal Step used to exercise BaseStep's machinery in
// isolation; it has no work of its own beyond the BaseStep defaults.
type trivialStep struct {
	BaseStep
}

func newTrivialStep(name string) *trivialStep {
	s := &trivialStep{BaseStep: NewBaseStep(name)}
	return s
}

func TestBaseStepRefNameDefaultsAndReferences(t *testing.T) {
	t.Parallel()
	a := newTrivialStep("a")
	b := newTrivialStep("b")
	b.AddDependency(a)

	require.Equal(t, "b", b.RefName())
	require.Len(t, b.References(), 1)
	require.Equal(t, "dependencies", b.References()[0].Attr)
	require.True(t, b.References()[0].AffectsExecutionOrder)
	require.Equal(t, Step(a), b.References()[0].Target)
}

func TestPromptUserFailsWithoutAttachedExecutor(t *testing.T) {
	t.Parallel()
	s := newTrivialStep("s")
	_, err := s.PromptUser("pick one", []string{"y", "n"}, "n")
	require.Error(t, err)
}

func TestPromptUserForStatusRetryRevertsCheckStatusException(t *testing.T) {
	t.Parallel()
	s := newTrivialStep("s")
	exec := NewExecutor(s)
	var err error
	exec.exec, err = exec.buildExecution()
	require.NoError(t, err)

	cse := streamyerrors.NewCheckStatusException("s", "running", errors.New("down"))
	s.StepStatus().SetFailed(cse)
	exec.Prompt = func(stepName, prompt string, choices []string, def string) (string, error) {
		return "r", nil
	}

	err = PromptUserForStatus(s, "status check failed", cse)
	require.NoError(t, err)
	require.True(t, s.StepStatus().Running())
	require.True(t, exec.exec.workingSet[s])
}

func TestPromptUserForStatusMarkFinished(t *testing.T) {
	t.Parallel()
	s := newTrivialStep("s")
	exec := NewExecutor(s)
	exec.exec, _ = exec.buildExecution()

	cause := errors.New("broken")
	s.StepStatus().SetFailed(cause)
	exec.Prompt = func(stepName, prompt string, choices []string, def string) (string, error) {
		return "f", nil
	}

	err := PromptUserForStatus(s, "status check failed", cause)
	require.NoError(t, err)
	require.True(t, s.StepStatus().Finished())
}

func TestPromptUserForStatusAbort(t *testing.T) {
	t.Parallel()
	s := newTrivialStep("s")
	exec := NewExecutor(s)
	exec.exec, _ = exec.buildExecution()

	cause := errors.New("broken")
	s.StepStatus().SetFailed(cause)
	exec.Prompt = func(stepName, prompt string, choices []string, def string) (string, error) {
		return "a", nil
	}

	err := PromptUserForStatus(s, "status check failed", cause)
	require.NoError(t, err)
	require.True(t, exec.exec.Aborted())
	require.True(t, exec.exec.Failed(s))
}
