package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/logger"
	"github.com/rileyhilliard/keyup/internal/ui"
	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

// Global flags, available to every subcommand.
var (
	cfgFile string
	verbose bool
	quiet   bool
	noColor bool
)

// rootCmd is the base command all subcommands hang off.
var rootCmd = &cobra.Command{
	Use:   "keyup",
	Short: "Bootstrap key-based SSH logins on remote hosts",
	Long: `keyup turns a password-only SSH host into a key-authenticated one.

One run generates a dedicated ed25519 key pair, writes a Host block to
~/.ssh/config, installs the public key in the remote authorized_keys, and
switches PubkeyAuthentication on in sshd_config. Re-running is always
safe: every step checks before it changes anything.

Examples:
  keyup bootstrap ops@10.0.0.5
  keyup bootstrap web-1 --disable-password-auth
  keyup verify web-1
  keyup doctor`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyGlobalFlags()
	},
}

// Execute runs the root command and maps errors to process exit codes.
// Called once from main.
func Execute() {
	// Route host-key and SSH-config warnings from the transport layer
	// through the UI so they're styled consistently and --quiet works.
	sshutil.WarningHandler = func(message string) {
		if !quiet && !machineMode {
			ui.PrintWarning(message)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		// An ExitError carries a specific exit code and has already
		// been reported by the command that raised it.
		if code, ok := errors.GetExitCode(err); ok {
			os.Exit(code)
		}

		if machineMode {
			_ = WriteJSONFromError(os.Stdout, err)
		} else {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
}

// applyGlobalFlags wires the global flags into the ambient stack before
// any RunE executes.
func applyGlobalFlags() {
	if noColor || os.Getenv("NO_COLOR") != "" || machineMode {
		ui.DisableColors()
	}

	switch {
	case quiet:
		logger.SetDefault(logger.Noop())
	case verbose:
		// The env logger gates Debug on KEYUP_DEBUG per call, so
		// setting it here turns on debug output everywhere at once.
		os.Setenv("KEYUP_DEBUG", "1")
	}
}

// Config returns the --config flag value, or "" when unset.
func Config() string {
	return cfgFile
}

// Quiet reports whether --quiet was passed.
func Quiet() bool {
	return quiet
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "path to .keyup.yaml (overrides discovery)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging (same as KEYUP_DEBUG=1)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&machineMode, "json", false, "machine-readable JSON output")
}
