package config

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/keyup/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	// Check version
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but keyup only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest keyup: https://github.com/rileyhilliard/keyup/releases")
	}

	if cfg.Defaults.Port < 0 || cfg.Defaults.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Default port %d is out of range", cfg.Defaults.Port),
			"Ports go from 1 to 65535. 22 is the usual one.")
	}

	for name, host := range cfg.Hosts {
		if err := validateHost(name, host); err != nil {
			return err
		}
	}

	return nil
}

// validateHost checks a single host entry.
func validateHost(name string, host Host) error {
	if err := validateHostName(name); err != nil {
		return err
	}

	if host.Address == "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' has no address", name),
			"Add 'address: <hostname or IP>' to the host entry.")
	}

	if host.Port < 0 || host.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' has port %d, which is out of range", name, host.Port),
			"Ports go from 1 to 65535. Leave it out to use the default.")
	}

	if host.Alias != "" && strings.ContainsAny(host.Alias, " \t") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' has an alias with whitespace: %q", name, host.Alias),
			"SSH config aliases can't contain spaces.")
	}

	return nil
}

// validateHostName checks that a host map key is usable as an SSH alias.
func validateHostName(name string) error {
	if name == "" {
		return errors.New(errors.ErrConfig,
			"Host entry with empty name",
			"Give every host entry a name.")
	}
	if strings.ContainsAny(name, " \t") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host name %q contains whitespace", name),
			"Host names double as SSH aliases, so no spaces.")
	}
	if strings.Contains(name, "@") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host name '%s' looks like an SSH string, not a name", name),
			"Use just a name here and put the login under 'user:'.")
	}
	if strings.Contains(name, "/") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host name '%s' contains a path separator", name),
			"Use just a name here, not a path.")
	}
	return nil
}
