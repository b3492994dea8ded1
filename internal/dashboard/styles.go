package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ductwork/ductwork/internal/workflow"
)

var (
	primaryColor = lipgloss.Color("99")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("226")
	errorColor   = lipgloss.Color("196")
	mutedColor   = lipgloss.Color("245")

	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	waveHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	spinnerStyle    = lipgloss.NewStyle().Foreground(primaryColor)
	doneStyle       = lipgloss.NewStyle().Bold(true).Foreground(successColor)

	stagePendingStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	stageValidatedStyle = lipgloss.NewStyle().Foreground(primaryColor)
	stageRunningStyle   = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	stageFinishedStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	stageFailedStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// stageStyle mirrors the teacher dashboard's GetStatusStyle, keyed by Stage
// instead of PipelineStatus.
func stageStyle(stage workflow.StageKind) lipgloss.Style {
	switch stage {
	case workflow.StageValidated:
		return stageValidatedStyle
	case workflow.StageRunning:
		return stageRunningStyle
	case workflow.StageFinished:
		return stageFinishedStyle
	case workflow.StageFailed:
		return stageFailedStyle
	default:
		return stagePendingStyle
	}
}

func stageIcon(stage workflow.StageKind) string {
	switch stage {
	case workflow.StageFinished:
		return "✔"
	case workflow.StageFailed:
		return "✘"
	case workflow.StageRunning:
		return "●"
	case workflow.StageValidated:
		return "○"
	default:
		return "·"
	}
}
