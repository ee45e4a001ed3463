package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/rileyhilliard/keyup/internal/config"
	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/ui"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Overwrite bool // Overwrite existing config without asking
}

// initData is the machine-readable result of init.
type initData struct {
	Path  string `json:"path"`
	Hosts int    `json:"hosts"`
}

// Init creates a new .keyup.yaml configuration file.
func Init(opts InitOptions) error {
	configPath := Config()
	if configPath == "" {
		configPath = config.ConfigFileName
	}

	// Check for existing config
	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if machineMode || !interactiveTerminal() {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", configPath)).
					Value(&overwrite),
			),
		)

		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}

		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// Optionally collect a first host. Prompts only make sense on a
	// terminal; --json and piped stdin get a defaults-only scaffold.
	var firstTarget, hostName string

	if !machineMode && interactiveTerminal() {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("First host (optional)").
					Description("user@host[:port] to pre-register, or leave empty to skip").
					Placeholder("deploy@203.0.113.7").
					Value(&firstTarget),
			),
		)

		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Check terminal compatibility or rerun with --json for a plain scaffold")
		}

		if strings.TrimSpace(firstTarget) != "" {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Host name").
						Description("A friendly name for this host in your config").
						Placeholder("web-1").
						Value(&hostName).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return fmt.Errorf("host name is required")
							}
							if strings.ContainsAny(s, " \t\n") {
								return fmt.Errorf("host name cannot contain whitespace")
							}
							return nil
						}),
				),
			)

			if err := form.Run(); err != nil {
				return errors.WrapWithCode(err, errors.ErrConfig,
					"Failed to get user input",
					"Check terminal compatibility")
			}
		}
	}

	// Build config
	cfg := config.DefaultConfig()

	if strings.TrimSpace(firstTarget) != "" {
		t, err := parseTarget(firstTarget)
		if err != nil {
			return err
		}
		cfg.Hosts[hostName] = config.Host{
			Address: t.Host,
			User:    t.User,
			Port:    t.Port,
		}
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config",
			"This shouldn't happen - please report this bug")
	}

	// Add a header comment
	header := `# keyup configuration
# Run 'keyup bootstrap <host>' to set up key-based logins
# See: https://github.com/rileyhilliard/keyup for documentation

`
	content := header + string(data)

	// Write config file
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", configPath),
			"Check directory permissions")
	}

	if machineMode {
		return WriteJSONSuccess(os.Stdout, initData{
			Path:  configPath,
			Hosts: len(cfg.Hosts),
		})
	}

	fmt.Printf("%s Created %s\n\n", ui.SymbolSuccess, configPath)
	fmt.Println("Next steps:")
	if hostName != "" {
		fmt.Printf("  keyup bootstrap %s   - Install a key on the host\n", hostName)
	} else {
		fmt.Println("  keyup bootstrap <user@host>  - Install a key on a host")
	}
	fmt.Println("  keyup verify <alias>         - Confirm key logins work")
	fmt.Println("  keyup doctor                 - Check your local setup")

	return nil
}

// initCommand is the implementation called by the cobra command.
func initCommand(force bool) error {
	return Init(InitOptions{Overwrite: force})
}
