package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// DividerWidth is the width of the line separating hosts in a
// multi-target run.
const DividerWidth = 64

// PhaseDisplay renders the step stream of a bootstrap run: one line per
// step, overwritten in place while in progress, finalized with a status
// symbol and elapsed time. It assumes it owns the current terminal
// line between RenderProgress and the matching final render.
type PhaseDisplay struct {
	w io.Writer
}

// NewPhaseDisplay creates a phase display writing to w.
func NewPhaseDisplay(w io.Writer) *PhaseDisplay {
	return &PhaseDisplay{w: w}
}

// RenderProgress renders a step in progress.
// Shows: ◐ Installing the public key...
func (pd *PhaseDisplay) RenderProgress(name string) {
	style := lipgloss.NewStyle().Foreground(ColorSecondary)
	fmt.Fprintf(pd.w, "\r%s %s...", style.Render(SymbolProgress), name)
}

// RenderSuccess renders a completed step.
// Shows: ● Public key installed (0.3s)
func (pd *PhaseDisplay) RenderSuccess(name string, duration time.Duration) {
	pd.clearLine()

	symbolStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	timingStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	fmt.Fprintf(pd.w, "%s %s %s\n",
		symbolStyle.Render(SymbolComplete),
		name,
		timingStyle.Render(formatDuration(duration)),
	)
}

// RenderFailed renders a failed step. The error itself is reported
// separately once the run settles; this line only marks where the run
// stopped.
// Shows: ✗ Connecting (2.3s)
func (pd *PhaseDisplay) RenderFailed(name string, duration time.Duration) {
	pd.clearLine()

	symbolStyle := lipgloss.NewStyle().Foreground(ColorError)
	timingStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	fmt.Fprintf(pd.w, "%s %s %s\n",
		symbolStyle.Render(SymbolFail),
		name,
		timingStyle.Render(formatDuration(duration)),
	)
}

// RenderSkipped renders a step that was declined or not applicable.
// Shows: ⊘ Disabling password logins on web-1 (declined)
func (pd *PhaseDisplay) RenderSkipped(name string, reason string) {
	pd.clearLine()

	symbolStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	reasonStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	if reason != "" {
		fmt.Fprintf(pd.w, "%s %s %s\n",
			symbolStyle.Render(SymbolSkipped),
			name,
			reasonStyle.Render("("+reason+")"),
		)
		return
	}
	fmt.Fprintf(pd.w, "%s %s\n",
		symbolStyle.Render(SymbolSkipped),
		name,
	)
}

// Divider renders a horizontal line separating one host's output from
// the next.
func (pd *PhaseDisplay) Divider() {
	style := lipgloss.NewStyle().Foreground(ColorMuted)
	fmt.Fprintf(pd.w, "\n%s\n", style.Render(strings.Repeat("━", DividerWidth)))
}

// clearLine blanks any in-progress render before a final line goes out.
func (pd *PhaseDisplay) clearLine() {
	fmt.Fprint(pd.w, "\r"+strings.Repeat(" ", 80)+"\r")
}
