package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rileyhilliard/keyup/internal/config"
)

// KeygenCheck verifies ssh-keygen is on PATH. Key generation shells out
// to it, so nothing works without it.
type KeygenCheck struct{}

func (c *KeygenCheck) Name() string     { return "ssh_keygen" }
func (c *KeygenCheck) Category() string { return "TOOLS" }

func (c *KeygenCheck) Run() CheckResult {
	path, err := exec.LookPath("ssh-keygen")
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "ssh-keygen not found in PATH",
			Suggestion: "Install the OpenSSH client: apt install openssh-client (Debian/Ubuntu) or dnf install openssh-clients (RHEL)",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("ssh-keygen found: %s", path),
	}
}

func (c *KeygenCheck) Fix() error {
	return nil // System package installation is out of scope
}

// KeyDirCheck verifies the key directory exists with owner-only access.
// sshd refuses keys whose directory is group or world accessible, so a
// loose mode here breaks logins in a way that is miserable to debug.
type KeyDirCheck struct {
	// Dir is the key directory. Empty means ~/.ssh.
	Dir string
}

func (c *KeyDirCheck) Name() string     { return "key_dir" }
func (c *KeyDirCheck) Category() string { return "KEYS" }

func (c *KeyDirCheck) dir() string {
	if c.Dir != "" {
		return config.ExpandTilde(c.Dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ssh"
	}
	return filepath.Join(home, ".ssh")
}

func (c *KeyDirCheck) Run() CheckResult {
	dir := c.dir()
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Key directory %s doesn't exist yet", dir),
			Suggestion: "The first bootstrap creates it. Run 'keyup doctor --fix' to create it now.",
			Fixable:    true,
		}
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot stat %s", dir),
			Suggestion: "Check ownership and permissions of the parent directory.",
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s exists but is not a directory", dir),
			Suggestion: "Move it aside; keyup stores key pairs there.",
		}
	}

	perm := info.Mode().Perm()
	if perm&0o077 != 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Key directory %s is group/world accessible (%04o)", dir, perm),
			Suggestion: fmt.Sprintf("Fix: chmod 700 %s", dir),
			Fixable:    true,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Key directory %s (mode %04o)", dir, perm),
	}
}

func (c *KeyDirCheck) Fix() error {
	dir := c.dir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		if err := os.Chmod(dir, 0o700); err != nil {
			return fmt.Errorf("failed to fix permissions on %s: %w", dir, err)
		}
	}
	return nil
}

// KnownHostsCheck verifies known_hosts can be appended to, since keyup
// records host keys there on first contact.
type KnownHostsCheck struct {
	// Path is the known_hosts file. Empty means ~/.ssh/known_hosts.
	Path string
}

func (c *KnownHostsCheck) Name() string     { return "known_hosts" }
func (c *KnownHostsCheck) Category() string { return "KEYS" }

func (c *KnownHostsCheck) path() string {
	if c.Path != "" {
		return config.ExpandTilde(c.Path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ssh", "known_hosts")
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

func (c *KnownHostsCheck) Run() CheckResult {
	path := c.path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("No known_hosts at %s yet", path),
			Suggestion: "First contact records it automatically. Run 'keyup doctor --fix' to create it with mode 600 now.",
			Fixable:    true,
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("known_hosts at %s is not writable", path),
			Suggestion: fmt.Sprintf("Fix: chmod 600 %s (and check ownership)", path),
		}
	}
	f.Close() //nolint:errcheck // Opened only to probe writability

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("known_hosts writable: %s", path),
	}
}

func (c *KnownHostsCheck) Fix() error {
	path := c.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f.Close()
}

// ConfigFileCheck verifies the keyup config, when one exists, loads and
// validates.
type ConfigFileCheck struct {
	// Path is the explicit --config value; empty uses the search order.
	Path string
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return "CONFIG" }

func (c *ConfigFileCheck) Run() CheckResult {
	path, err := config.Find(c.Path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Config file not found: %s", c.Path),
			Suggestion: "Check the --config path, or run 'keyup init' to create one.",
		}
	}
	if path == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No .keyup.yaml found (defaults apply)",
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Config at %s doesn't load", path),
			Suggestion: "Fix the YAML syntax, or regenerate with 'keyup init --force'.",
		}
	}
	if err := config.Validate(cfg); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Config at %s is invalid", path),
			Suggestion: err.Error(),
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Config OK: %s (%d host%s)", path, len(cfg.Hosts), pluralize(len(cfg.Hosts))),
	}
}

func (c *ConfigFileCheck) Fix() error {
	return nil // Rewriting a broken config is 'keyup init --force' territory
}

// NewLocalChecks creates the machine-local checks.
func NewLocalChecks(keyDir, configPath string) []Check {
	return []Check{
		&KeygenCheck{},
		&KeyDirCheck{Dir: keyDir},
		&KnownHostsCheck{},
		&ConfigFileCheck{Path: configPath},
	}
}
