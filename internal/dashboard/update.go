package dashboard

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ductwork/ductwork/internal/workflow"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		if m.allTerminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

// refresh copies the Executor's current per-step stages onto the model's
// rows, leaving a row's stage unchanged for any step Snapshot doesn't yet
// report (the run hasn't started, i.e. before the first Execute pass).
func (m *Model) refresh() {
	stages := make(map[string]workflow.StageKind, len(m.rows))
	for _, s := range m.exec.Snapshot() {
		stages[s.Name] = s.Stage
	}
	for i := range m.rows {
		if st, ok := stages[m.rows[i].name]; ok {
			m.rows[i].stage = st
		}
	}
}

func (m Model) allTerminal() bool {
	if len(m.rows) == 0 {
		return false
	}
	for _, r := range m.rows {
		if r.stage != workflow.StageFinished && r.stage != workflow.StageFailed {
			return false
		}
	}
	return true
}
