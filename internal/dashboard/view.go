package dashboard

import (
	"fmt"
	"strings"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("workflow run"))
	b.WriteString("\n")

	currentWave := -1
	for _, r := range m.rows {
		if r.wave != currentWave {
			currentWave = r.wave
			fmt.Fprintf(&b, "%s\n", waveHeaderStyle.Render(fmt.Sprintf("wave %d", currentWave)))
		}
		fmt.Fprintf(&b, "  %s %s\n", stageIcon(r.stage), stageStyle(r.stage).Render(r.name))
	}

	if m.done {
		b.WriteString(doneStyle.Render("\nfinished\n"))
	} else {
		fmt.Fprintf(&b, "\n%s polling...  (q to quit)\n", m.spinner.View())
	}

	return b.String()
}
