package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HeaderInfo contains information to display in the run header.
type HeaderInfo struct {
	Version string // Version string (e.g., "v0.4.0")
	Tagline string // Optional tagline (e.g., "Bootstrapping 3 hosts")
}

// RenderHeader renders the banner shown before a multi-host run. The rule
// underneath is DividerWidth wide so it lines up with the per-host dividers
// that follow.
func RenderHeader(info HeaderInfo) string {
	nameStyle := lipgloss.NewStyle().
		Foreground(ColorNeonPink).
		Bold(true)
	versionStyle := lipgloss.NewStyle().
		Foreground(ColorNeonCyan)
	ruleStyle := lipgloss.NewStyle().
		Foreground(ColorGlassBorder)

	lines := []string{
		nameStyle.Render("keyup") + " " + versionStyle.Render(info.Version),
	}
	if info.Tagline != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(ColorSecondary).Render(info.Tagline))
	}
	lines = append(lines, ruleStyle.Render(strings.Repeat("━", DividerWidth)))

	return strings.Join(lines, "\n") + "\n"
}

// PrintHeader prints the styled header to stdout.
func PrintHeader(info HeaderInfo) {
	fmt.Print(RenderHeader(info))
}
