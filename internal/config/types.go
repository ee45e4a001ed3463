package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .keyup.yaml configuration file.
type Config struct {
	Version  int             `yaml:"version" mapstructure:"version"`
	Defaults Defaults        `yaml:"defaults" mapstructure:"defaults"`
	Hosts    map[string]Host `yaml:"hosts" mapstructure:"hosts"`
}

// Defaults hold settings applied to every host unless the host entry
// overrides them.
type Defaults struct {
	// User is the default login name for hosts that don't set one.
	User string `yaml:"user" mapstructure:"user"`

	// Port is the default SSH port.
	Port int `yaml:"port" mapstructure:"port"`

	// ConnectTimeout bounds the TCP dial and SSH handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// DisablePasswordAuth turns off sshd password logins after key
	// installation on every bootstrapped host.
	DisablePasswordAuth bool `yaml:"disable_password_auth" mapstructure:"disable_password_auth"`

	// KeyDir is where generated key pairs are stored.
	// Supports ~ and ${HOME} expansion.
	KeyDir string `yaml:"key_dir" mapstructure:"key_dir"`
}

// MarshalYAML writes ConnectTimeout in duration form ("10s") rather
// than raw nanoseconds. The loader accepts either.
func (d Defaults) MarshalYAML() (interface{}, error) {
	type rendered struct {
		User                string `yaml:"user,omitempty"`
		Port                int    `yaml:"port"`
		ConnectTimeout      string `yaml:"connect_timeout"`
		DisablePasswordAuth bool   `yaml:"disable_password_auth"`
		KeyDir              string `yaml:"key_dir"`
	}
	return rendered{
		User:                d.User,
		Port:                d.Port,
		ConnectTimeout:      d.ConnectTimeout.String(),
		DisablePasswordAuth: d.DisablePasswordAuth,
		KeyDir:              d.KeyDir,
	}, nil
}

// UnmarshalYAML accepts connect_timeout as a duration string ("10s") or
// raw nanoseconds, so files written by MarshalYAML read back cleanly.
func (d *Defaults) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		User                string    `yaml:"user"`
		Port                int       `yaml:"port"`
		ConnectTimeout      yaml.Node `yaml:"connect_timeout"`
		DisablePasswordAuth bool      `yaml:"disable_password_auth"`
		KeyDir              string    `yaml:"key_dir"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	d.User = raw.User
	d.Port = raw.Port
	d.DisablePasswordAuth = raw.DisablePasswordAuth
	d.KeyDir = raw.KeyDir

	if s := raw.ConnectTimeout.Value; s != "" {
		if dur, err := time.ParseDuration(s); err == nil {
			d.ConnectTimeout = dur
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			d.ConnectTimeout = time.Duration(n)
		} else {
			return fmt.Errorf("invalid connect_timeout %q", s)
		}
	}
	return nil
}

// Host defines a remote machine to bootstrap.
type Host struct {
	// Address is the hostname or IP to connect to (required).
	Address string `yaml:"address" mapstructure:"address"`

	// User is the login name. Falls back to defaults.user.
	User string `yaml:"user" mapstructure:"user"`

	// Port is the SSH port. Falls back to defaults.port.
	Port int `yaml:"port" mapstructure:"port"`

	// Alias is the SSH config alias written to ~/.ssh/config.
	// Defaults to the host's map key.
	Alias string `yaml:"alias" mapstructure:"alias"`

	// DisablePasswordAuth turns off sshd password logins for this host
	// after key installation.
	DisablePasswordAuth bool `yaml:"disable_password_auth" mapstructure:"disable_password_auth"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Defaults: Defaults{
			Port:                22,
			ConnectTimeout:      10 * time.Second,
			DisablePasswordAuth: false,
			KeyDir:              "~/.ssh",
		},
		Hosts: make(map[string]Host),
	}
}

// Resolve returns the effective settings for a named host with defaults
// merged in. The second return is false when the host isn't configured.
func (c *Config) Resolve(name string) (Host, bool) {
	h, ok := c.Hosts[name]
	if !ok {
		return Host{}, false
	}
	if h.User == "" {
		h.User = c.Defaults.User
	}
	if h.Port == 0 {
		h.Port = c.Defaults.Port
	}
	if h.Alias == "" {
		h.Alias = name
	}
	if c.Defaults.DisablePasswordAuth {
		h.DisablePasswordAuth = true
	}
	return h, true
}
