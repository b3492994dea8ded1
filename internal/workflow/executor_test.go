package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStep is a configurable Step used across executor scenarios: it
// optionally fails validation or every run attempt, and otherwise finishes
// on its first status check after entering Running.
type fakeStep struct {
	BaseStep

	validateErr error
	failRun     bool
	runErr      error

	validateCalls int
	runCalls      int
	checks        int
}

func newFakeStep(name string) *fakeStep {
	return &fakeStep{BaseStep: NewBaseStep(name)}
}

func (f *fakeStep) Validate() error {
	f.validateCalls++
	return f.validateErr
}

func (f *fakeStep) Run() error {
	f.runCalls++
	if f.failRun {
		if f.runErr != nil {
			return f.runErr
		}
		return errors.New("run failed")
	}
	return nil
}

func (f *fakeStep) CheckStatus() error {
	f.checks++
	if f.StepStatus().Running() {
		f.StepStatus().SetFinished()
	}
	return nil
}

func TestExecuteSingleLeafFinishes(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	exec := NewExecutor(a)

	err := exec.Execute()
	require.NoError(t, err)
	require.True(t, a.StepStatus().Finished())
	require.False(t, exec.LastExecution().Aborted())
}

func TestExecuteDiamondFinishesInOrder(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	b := newFakeStep("b")
	c := newFakeStep("c")
	d := newFakeStep("d")
	b.AddDependency(a)
	c.AddDependency(a)
	d.AddDependency(b)
	d.AddDependency(c)

	exec := NewExecutor(d)
	err := exec.Execute()
	require.NoError(t, err)

	require.True(t, d.StepStatus().Finished())
	require.True(t, b.StepStatus().Finished())
	require.True(t, c.StepStatus().Finished())
	require.Equal(t, 1, a.validateCalls)
}

func TestExecuteDetectsCycle(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	b := newFakeStep("b")
	a.AddDependency(b)
	b.AddDependency(a)

	exec := NewExecutor(a)
	err := exec.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "a")
	require.Contains(t, err.Error(), "b")
}

func TestExecuteSkipPolicyStarvesDownstreamConsumers(t *testing.T) {
	t.Parallel()
	f1 := newFakeStep("f1")
	f1.failRun = true
	f2 := newFakeStep("f2")
	f2.failRun = true
	s := newFakeStep("s")

	p := newFakeStep("p")
	p.AddDependency(f1)
	p.AddDependency(f2)
	p.AddDependency(s)

	p2 := newFakeStep("p2")
	p2.AddDependency(s)

	exec := NewExecutor(p, p2)
	exec.OnFailure = PolicySkip

	err := exec.Execute()
	require.NoError(t, err)

	require.True(t, exec.LastExecution().Failed(f1))
	require.True(t, exec.LastExecution().Failed(f2))
	require.True(t, s.StepStatus().Finished())
	require.True(t, p.StepStatus().Validated())
	require.True(t, p2.StepStatus().Finished())
	require.False(t, exec.LastExecution().Aborted())
}

func TestExecutePromptPolicyRetryThenMarkFinished(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	a.failRun = true

	exec := NewExecutor(a)
	exec.OnFailure = PolicyPrompt

	prompts := 0
	exec.Prompt = func(stepName, prompt string, choices []string, def string) (string, error) {
		prompts++
		if prompts == 1 {
			return "r", nil
		}
		return "f", nil
	}

	err := exec.Execute()
	require.NoError(t, err)
	require.True(t, a.StepStatus().Finished())
	require.Equal(t, 2, prompts)
}

func TestExecuteRaisePolicyUnwindsWithCause(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	a.failRun = true
	a.runErr = errors.New("disk full")

	exec := NewExecutor(a)
	exec.OnFailure = PolicyRaise

	err := exec.Execute()
	require.ErrorContains(t, err, "disk full")
	require.True(t, exec.LastExecution().Aborted())
}

func TestExecuteEmptyWorkflowCompletesImmediately(t *testing.T) {
	t.Parallel()
	exec := NewExecutor()

	err := exec.Execute()
	require.NoError(t, err)
	require.Empty(t, exec.LastExecution().AllSteps())
}

func TestExecuteGracefulShutdownDrainsWithoutRunningRemainder(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	a.failRun = true
	b := newFakeStep("b")
	b.AddDependency(a)

	exec := NewExecutor(a, b)
	exec.OnFailure = PolicyGracefulShutdown

	err := exec.Execute()
	require.NoError(t, err)
	require.True(t, exec.LastExecution().Aborted())
	require.True(t, exec.LastExecution().Failed(a))
	require.False(t, b.StepStatus().Finished())
}

func TestExecuteDryRunSkipsRunPhase(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	exec := NewExecutor(a)
	exec.DryRun = true

	err := exec.Execute()
	require.NoError(t, err)
	require.True(t, a.StepStatus().Validated())
	require.Equal(t, 0, a.runCalls)
}

func TestSnapshotReportsFinalStagesAfterExecute(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	b := newFakeStep("b")
	b.AddDependency(a)

	exec := NewExecutor(b)
	require.NoError(t, exec.Execute())

	snaps := map[string]StageKind{}
	for _, s := range exec.Snapshot() {
		snaps[s.Name] = s.Stage
	}
	require.Equal(t, StageFinished, snaps["a"])
	require.Equal(t, StageFinished, snaps["b"])
}

func TestSnapshotBeforeExecuteIsEmpty(t *testing.T) {
	t.Parallel()
	exec := NewExecutor(newFakeStep("a"))
	require.Empty(t, exec.Snapshot())
}

func TestGenerationsOrdersDiamondIntoThreeWaves(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	b := newFakeStep("b")
	c := newFakeStep("c")
	d := newFakeStep("d")
	b.AddDependency(a)
	c.AddDependency(a)
	d.AddDependency(b)
	d.AddDependency(c)

	exec := NewExecutor(d)
	waves, err := exec.Generations()
	require.NoError(t, err)
	require.Len(t, waves, 3)
	require.Len(t, waves[0], 1)
	require.Equal(t, "a", waves[0][0].RefName())
	require.Len(t, waves[1], 2)
	require.Len(t, waves[2], 1)
	require.Equal(t, "d", waves[2][0].RefName())
}
