package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMonitorRejectsWatchAllWithExplicitWatches(t *testing.T) {
	t.Parallel()
	w := newFakeStep("w")
	_, err := NewMonitor("m", true, []Step{w})
	require.Error(t, err)
}

func TestMonitorWatchAllDiscoversEveryOtherRealStep(t *testing.T) {
	t.Parallel()
	a := newFakeStep("a")
	b := newFakeStep("b")
	c := newFakeStep("c")
	b.AddDependency(a)
	c.AddDependency(b)

	m, err := NewMonitor("m", true, nil)
	require.NoError(t, err)

	exec := NewExecutor(c, m)
	err = exec.Execute()
	require.NoError(t, err)

	require.True(t, m.StepStatus().Finished())
	names := map[string]bool{}
	for _, w := range m.Watches() {
		names[w.RefName()] = true
	}
	require.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, names)
}

func TestMonitorFinishesCleanlyWhenExecutionAborted(t *testing.T) {
	t.Parallel()
	failing := newFakeStep("failing")
	failing.failRun = true

	watched := newFakeStep("watched")

	m, err := NewMonitor("m", false, []Step{watched})
	require.NoError(t, err)

	exec := NewExecutor(failing, watched, m)
	exec.OnFailure = PolicyGracefulShutdown

	err = exec.Execute()
	require.NoError(t, err)
	require.True(t, exec.LastExecution().Aborted())
	require.True(t, m.StepStatus().Finished())
}

func TestMonitorFinishesWhenWatchListIsEmpty(t *testing.T) {
	t.Parallel()
	m, err := NewMonitor("m", false, nil)
	require.NoError(t, err)

	exec := NewExecutor(m)
	err = exec.Execute()
	require.NoError(t, err)
	require.True(t, m.StepStatus().Finished())
}

func TestMonitorStarterWaitsForAllMonitorsToLeaveWorkingSet(t *testing.T) {
	t.Parallel()
	watched := newFakeStep("watched")
	m1, err := NewMonitor("m1", false, []Step{watched})
	require.NoError(t, err)
	m2, err := NewMonitor("m2", false, []Step{watched})
	require.NoError(t, err)

	starter := NewMonitorStarter("starter", []*Monitor{m1, m2})

	exec := NewExecutor(watched, m1, m2, starter)
	err = exec.Execute()
	require.NoError(t, err)
	require.True(t, starter.StepStatus().Finished())
}
