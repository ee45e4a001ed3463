package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// BootstrapResult represents the outcome of bootstrapping one host for
// summary display. This mirrors bootstrap.Outcome to avoid circular imports.
type BootstrapResult struct {
	Host      string
	Alias     string
	Completed bool
	Duration  time.Duration
	Err       error
}

// SummaryRenderer formats multi-host bootstrap summaries for terminal display.
type SummaryRenderer struct {
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	aliasStyle   lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewSummaryRenderer creates a new summary renderer with default styles.
func NewSummaryRenderer() *SummaryRenderer {
	return &SummaryRenderer{
		errorStyle:   lipgloss.NewStyle().Foreground(ColorError),
		successStyle: lipgloss.NewStyle().Foreground(ColorSuccess),
		aliasStyle:   lipgloss.NewStyle().Foreground(ColorInfo),
		mutedStyle:   lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// RenderBootstrapSummary generates a formatted per-host summary for a
// multi-host run. Returns an empty string when there's nothing to show.
func RenderBootstrapSummary(results []BootstrapResult) string {
	r := NewSummaryRenderer()
	return r.Render(results)
}

// Render generates the formatted summary string.
func (r *SummaryRenderer) Render(results []BootstrapResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder

	succeeded := 0
	for _, result := range results {
		if result.Completed {
			succeeded++
			sb.WriteString(r.successStyle.Render(SymbolSuccess))
			sb.WriteString(" ")
			sb.WriteString(result.Host)
			if result.Alias != "" {
				sb.WriteString("  ")
				sb.WriteString(r.aliasStyle.Render("ssh " + result.Alias))
			}
			sb.WriteString(" ")
			sb.WriteString(r.mutedStyle.Render("(" + formatDuration(result.Duration) + ")"))
			sb.WriteString("\n")
			continue
		}

		sb.WriteString(r.errorStyle.Render(SymbolFail))
		sb.WriteString(" ")
		sb.WriteString(result.Host)
		sb.WriteString(" ")
		sb.WriteString(r.mutedStyle.Render("(" + formatDuration(result.Duration) + ")"))
		sb.WriteString("\n")

		if result.Err != nil {
			// Handle multi-line messages
			lines := strings.Split(result.Err.Error(), "\n")
			for _, line := range lines {
				sb.WriteString("    ")
				sb.WriteString(r.mutedStyle.Render(line))
				sb.WriteString("\n")
			}
		}
	}

	failed := len(results) - succeeded
	sb.WriteString("\n")
	if failed == 0 {
		sb.WriteString(r.successStyle.Render(
			fmt.Sprintf("%d host%s ready", succeeded, pluralize(succeeded))))
	} else {
		sb.WriteString(fmt.Sprintf("%d succeeded, %s",
			succeeded,
			r.errorStyle.Render(fmt.Sprintf("%d failed", failed))))
	}
	sb.WriteString("\n")

	return sb.String()
}

// pluralize returns "s" if n != 1.
func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
