// Package ui provides terminal UI components for keyup's CLI output.
//
// The package includes spinners, the bootstrap step display, and styled
// text output using the Lip Gloss library for consistent terminal
// styling across all commands.
//
// # Components Overview
//
//	Spinner          - Animated status indicator for a single operation
//	PhaseDisplay     - Renders the step stream of a bootstrap run
//	SummaryRenderer  - Per-host results after a multi-target run
//
// # Color Scheme
//
// Colors are defined as hex values with semantic aliases:
//
//	ColorSuccess   (green)  - Successful operations
//	ColorError     (red)    - Failures and errors
//	ColorWarning   (amber)  - Warnings and skipped items
//	ColorInfo      (cyan)   - Informational messages
//	ColorMuted     (gray)   - Secondary text, timing info
//	ColorSecondary (blue)   - In-progress indicators
//
// Use DisableColors() to switch to monochrome output (for --no-color flag).
//
// # Symbols
//
// Unicode symbols provide visual status indicators:
//
//	SymbolSuccess  (checkmark)  - Step completed successfully
//	SymbolFail     (X)          - Step failed
//	SymbolPending  (circle)     - Step not yet started
//	SymbolProgress (half-fill)  - Step in progress
//	SymbolComplete (filled)     - Step done (alternative)
//	SymbolSkipped  (slashed)    - Step skipped
//	SymbolWarning  (triangle)   - Non-fatal problem
//
// # Spinner Usage
//
// The Spinner type provides an animated indicator for operations:
//
//	s := ui.NewSpinner("Connecting as web-1")
//	s.Start()
//	// ... dial ...
//	s.Success() // or s.Fail() or s.Skip()
//
// The spinner handles terminal output, clearing lines, and timing display.
//
// # Phase Display
//
// PhaseDisplay renders bootstrap step progress with consistent formatting:
//
//	pd := ui.NewPhaseDisplay(os.Stdout)
//	pd.RenderProgress("Connecting")             // Shows in-progress line
//	pd.RenderSuccess("Connected", duration)     // Shows checkmark with timing
//	pd.Divider()                                // Separates hosts
package ui
