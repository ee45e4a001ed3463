package cli

import (
	"fmt"
	"os"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/util"
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	bootstrapUserFlag     string
	bootstrapPasswordFlag string
	bootstrapPortFlag     int
	bootstrapAliasFlag    string
	bootstrapTimeoutFlag  string
	bootstrapDisableFlag  bool
	bootstrapYesFlag      bool
	bootstrapSaveFlag     bool
	verifyTimeoutFlag     string
	initForce             bool
)

// bootstrapCmd installs a key and enables key-based logins on hosts
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap <target>...",
	Short: "Set up key-based SSH login on remote hosts",
	Long: `Bootstrap key-based SSH logins on one or more remote hosts.

Generates an Ed25519 key pair (if needed), connects with a password,
installs the public key in authorized_keys, optionally hardens the
remote sshd, and writes a Host block to ~/.ssh/config so plain
'ssh <alias>' works afterwards.

Targets are configured host names from .keyup.yaml or ad-hoc
user@host[:port] addresses.

Examples:
  keyup bootstrap web-1
  keyup bootstrap deploy@203.0.113.7
  keyup bootstrap deploy@203.0.113.7:2222 --alias staging
  keyup bootstrap web-1 web-2 db-1 --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrapCommand(args)
	},
}

// verifyCmd confirms key-based login works for an alias
var verifyCmd = &cobra.Command{
	Use:   "verify <alias>",
	Short: "Confirm key-based login works for an alias",
	Long: `Verify that key-based SSH login works for a bootstrapped alias.

Dials the alias using its Host block from ~/.ssh/config, runs a probe
command over the connection, and reports the round-trip time.

Examples:
  keyup verify web-1
  keyup verify web-1 --timeout 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyCommand(args[0])
	},
}

// initCmd creates a new .keyup.yaml configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .keyup.yaml configuration",
	Long: `Initialize a new keyup configuration file.

Creates a .keyup.yaml file in the current directory with sensible
defaults and optionally pre-registers a first host.

Examples:
  keyup init
  keyup init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(initForce)
	},
}

// doctorCmd diagnoses local SSH setup issues
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose local SSH setup issues",
	Long: `Run diagnostic checks against the local SSH setup.

Checks:
  - ssh-keygen availability
  - Key directory presence and permissions
  - Configuration validity
  - ~/.ssh/config parseability and managed Host blocks

Examples:
  keyup doctor
  keyup doctor --fix`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand()
	},
}

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for keyup.

Examples:
  # Bash
  keyup completion bash > /etc/bash_completion.d/keyup

  # Zsh
  keyup completion zsh > "${fpath[1]}/_keyup"

  # Fish
  keyup completion fish > ~/.config/fish/completions/keyup.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return errors.New(errors.ErrValidation,
				"Unknown shell: "+args[0],
				fmt.Sprintf("Supported shells: %s", util.JoinOrNone(cmd.ValidArgs)))
		}
	},
}

func init() {
	// bootstrap command flags
	bootstrapCmd.Flags().StringVarP(&bootstrapUserFlag, "user", "u", "", "login user (overrides config)")
	bootstrapCmd.Flags().StringVar(&bootstrapPasswordFlag, "password", "", "password for the first connection (prompted when omitted)")
	bootstrapCmd.Flags().IntVarP(&bootstrapPortFlag, "port", "p", 0, "SSH port (overrides config)")
	bootstrapCmd.Flags().StringVar(&bootstrapAliasFlag, "alias", "", "SSH config alias to write (single target only)")
	bootstrapCmd.Flags().StringVar(&bootstrapTimeoutFlag, "timeout", "", "connect timeout (e.g., 5s, 30s)")
	bootstrapCmd.Flags().BoolVar(&bootstrapDisableFlag, "disable-password-auth", false, "turn off sshd password logins after key install")
	bootstrapCmd.Flags().BoolVarP(&bootstrapYesFlag, "yes", "y", false, "skip confirmation prompts")
	bootstrapCmd.Flags().BoolVar(&bootstrapSaveFlag, "save", false, "save ad-hoc targets to the config file")

	// verify command flags
	verifyCmd.Flags().StringVar(&verifyTimeoutFlag, "timeout", "", "connect timeout (e.g., 5s, 30s)")

	// init command flags
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing config")

	// Register all commands
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(completionCmd)
}
