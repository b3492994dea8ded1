package dashboard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/ductwork/ductwork/internal/workflow"
)

// fakeStep finishes on its first status check, whatever stage it is in.
type fakeStep struct {
	workflow.BaseStep
}

func newFakeStep(name string) *fakeStep {
	return &fakeStep{BaseStep: workflow.NewBaseStep(name)}
}

func (f *fakeStep) CheckStatus() error {
	f.StepStatus().SetFinished()
	return nil
}

func TestNewModelGroupsStepsIntoWaves(t *testing.T) {
	a := newFakeStep("a")
	b := newFakeStep("b")
	b.AddDependency(a)
	exec := workflow.NewExecutor(b)

	m, err := NewModel(exec)
	require.NoError(t, err)
	require.Len(t, m.rows, 2)
	require.Equal(t, "a", m.rows[0].name)
	require.Equal(t, 0, m.rows[0].wave)
	require.Equal(t, "b", m.rows[1].name)
	require.Equal(t, 1, m.rows[1].wave)
}

func TestUpdateTickRefreshesStagesFromExecutorSnapshot(t *testing.T) {
	a := newFakeStep("a")
	exec := workflow.NewExecutor(a)
	require.NoError(t, exec.Execute())

	m, err := NewModel(exec)
	require.NoError(t, err)

	updated, cmd := m.Update(tickMsg{})
	dm, ok := updated.(Model)
	require.True(t, ok)
	require.Equal(t, workflow.StageFinished, dm.rows[0].stage)
	require.True(t, dm.done)
	require.NotNil(t, cmd)
}

func TestUpdateQuitKeyQuits(t *testing.T) {
	m, err := NewModel(workflow.NewExecutor(newFakeStep("a")))
	require.NoError(t, err)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}

func TestViewRendersStepNames(t *testing.T) {
	m, err := NewModel(workflow.NewExecutor(newFakeStep("a")))
	require.NoError(t, err)

	require.Contains(t, m.View(), "a")
}
