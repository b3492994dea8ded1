package dashboard

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// pollInterval is how often the dashboard re-reads the Executor's Snapshot.
// Independent of the Executor's own ScanInterval: the dashboard is a
// read-only observer, never the thing pacing the run.
const pollInterval = 150 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
