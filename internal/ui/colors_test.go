package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaletteIsHex(t *testing.T) {
	palette := []lipgloss.Color{
		ColorNeonPink,
		ColorNeonCyan,
		ColorNeonPurple,
		ColorNeonGreen,
		ColorNeonOrange,
		ColorNeonAmber,
		ColorDeepVoid,
		ColorDarkSurface,
		ColorGlassBorder,
		ColorSuccess,
		ColorError,
		ColorWarning,
		ColorInfo,
		ColorPrimary,
		ColorSecondary,
		ColorMuted,
	}
	palette = append(palette, GradientColors...)

	for _, color := range palette {
		s := string(color)
		require.NotEmpty(t, s)
		assert.Equal(t, byte('#'), s[0], "color should be hex: %s", s)
		assert.Len(t, s, 7, "color should be #RRGGBB: %s", s)
	}
}

func TestGradientCycle(t *testing.T) {
	// The spinner indexes into this slice, so it must never be empty
	assert.Len(t, GradientColors, 4)
}

func TestSemanticStyles(t *testing.T) {
	tests := []struct {
		name  string
		style lipgloss.Style
	}{
		{"success", SuccessStyle()},
		{"error", ErrorStyle()},
		{"warning", WarningStyle()},
		{"info", InfoStyle()},
		{"muted", MutedStyle()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rendered := tt.style.Render(tt.name + " text")
			assert.Contains(t, rendered, tt.name+" text")
		})
	}
}

func TestPrintWarning(t *testing.T) {
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w

	PrintWarning("host key for web-1 not yet recorded")

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	output := buf.String()

	assert.Contains(t, output, "host key for web-1 not yet recorded")
	assert.Contains(t, output, SymbolWarning)
}

func TestDisableColors(t *testing.T) {
	assert.NotPanics(t, func() {
		DisableColors()
	})

	// Styles still render their text after the profile drops to ASCII
	rendered := SuccessStyle().Render("ready")
	assert.Contains(t, rendered, "ready")
}
