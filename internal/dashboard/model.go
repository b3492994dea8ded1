// Package dashboard implements the optional §4.14 live view: a bubbletea
// program that polls a running workflow.Executor's Snapshot on a tea.Tick
// and renders each step colored by its current Stage, grouped into the
// reference-generation waves graph.Generations computes for visualization.
//
// Grounded on the teacher's internal/tui/dashboard (Model/Update/View split
// across model.go/update.go/view.go/styles.go/commands.go, a bubbles
// spinner for the "still working" indicator), generalized from pipelines
// colored by PipelineStatus to steps colored by workflow.StageKind.
package dashboard

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ductwork/ductwork/internal/workflow"
)

// rowState is one rendered step row: its name, the wave it belongs to, and
// the most recently polled stage.
type rowState struct {
	name  string
	wave  int
	stage workflow.StageKind
}

// Model is the dashboard's bubbletea model.
type Model struct {
	exec    *workflow.Executor
	rows    []rowState
	spinner spinner.Model
	done    bool
}

// NewModel builds a dashboard over exec. The wave grouping is computed once
// up front since a step's References never change after construction; only
// its Stage moves during a run.
func NewModel(exec *workflow.Executor) (Model, error) {
	waves, err := exec.Generations()
	if err != nil {
		return Model{}, err
	}

	var rows []rowState
	for wi, wave := range waves {
		for _, step := range wave {
			rows = append(rows, rowState{name: step.RefName(), wave: wi})
		}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{exec: exec, rows: rows, spinner: s}, nil
}

// Init kicks off the spinner animation and the first Snapshot poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Run launches the dashboard over exec and blocks until every step reaches
// a terminal stage or the user quits.
func Run(exec *workflow.Executor) error {
	m, err := NewModel(exec)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m).Run()
	return err
}
