// Package cli implements the keyup command-line interface.
//
// The package is organized around Cobra commands, with each command
// delegating to an exported workflow function (Bootstrap, Verify, Init)
// so the logic stays testable without a terminal. The general structure
// keeps a clean separation between:
//
//   - Command definitions (cobra.Command instances in commands.go)
//   - Workflow functions (BootstrapOptions/Bootstrap and friends)
//   - Implementation details (in other internal packages)
//
// # Command Structure
//
// The root command is "keyup" with subcommands for different operations:
//
//	keyup bootstrap <target>... - Install a key and enable key logins
//	keyup verify <alias>        - Prove passwordless login works
//	keyup doctor                - Diagnose local SSH setup issues
//	keyup init                  - Create a .keyup.yaml config
//	keyup version               - Print version information
//	keyup completion <shell>    - Generate shell completions
//
// # Target Resolution
//
// Bootstrap targets come in three shapes: a name defined in .keyup.yaml,
// a bare host, or user@host[:port]. Configured names win, so "keyup
// bootstrap web-1" picks up the address, user, and port from the config
// file; anything else is parsed literally. Flags override both.
//
// # Flag Handling
//
// Global flags (--config, --verbose, --quiet, --no-color, --json) are
// defined on the root command and available to all subcommands.
// Command-specific flags like --password and --disable-password-auth are
// defined on individual commands in commands.go's init.
//
// # Machine Output
//
// With --json every command wraps its output in the JSONEnvelope from
// json.go: {success, data, error{code, message, suggestion, details}}.
// Interactive prompts are skipped in this mode, so missing required
// input fails instead of hanging a pipeline.
package cli
