// Package util provides common utility functions used across the codebase.
package util

import "strings"

// ShellQuote single-quotes s for literal use in a remote shell command.
// Embedded single quotes are closed, escaped, and reopened, so the
// result is safe whatever the input contains.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellQuotePreserveTilde quotes a path while leaving a leading ~/
// outside the quotes. Remote paths like ~/.ssh/authorized_keys must
// resolve against the connected user's home, and a quoted tilde never
// expands. Paths without the prefix are quoted whole; a ~user form
// counts as one of those, since keyup only ever targets the connected
// user's own home.
func ShellQuotePreserveTilde(path string) string {
	switch {
	case path == "~":
		return "~"
	case strings.HasPrefix(path, "~/"):
		return "~/" + ShellQuote(path[2:])
	default:
		return ShellQuote(path)
	}
}
