package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rileyhilliard/keyup/internal/config"
	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

// SSHConfigParseCheck verifies ~/.ssh/config still parses. keyup only
// ever appends to it, but a file broken by hand edits makes every alias
// unusable, including the managed ones.
type SSHConfigParseCheck struct {
	// Path overrides ~/.ssh/config, mainly for tests.
	Path string
}

func (c *SSHConfigParseCheck) Name() string     { return "ssh_config" }
func (c *SSHConfigParseCheck) Category() string { return "SSH_CONFIG" }

func (c *SSHConfigParseCheck) Run() CheckResult {
	path := sshConfigPath(c.Path)
	entries, err := sshutil.ParseSSHConfigFile(path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("SSH config at %s doesn't parse", path),
			Suggestion: "Fix the syntax by hand; keyup can't append to a broken file.",
		}
	}
	if entries == nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return CheckResult{
				Name:    c.Name(),
				Status:  StatusPass,
				Message: fmt.Sprintf("No SSH config at %s yet (bootstrap creates it)", path),
			}
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH config OK: %d host entr%s", len(entries), pluralizeY(len(entries))),
	}
}

func (c *SSHConfigParseCheck) Fix() error {
	return nil // Hand edits need hand fixes
}

// ManagedKeysCheck warns when Host blocks point at identity files that
// are gone from disk, which turns 'ssh alias' into an auth failure long
// after the bootstrap that created the block.
type ManagedKeysCheck struct {
	// Path overrides ~/.ssh/config, mainly for tests.
	Path string

	// KeyDir limits the check to identities stored under it. Empty
	// checks every entry that names an IdentityFile.
	KeyDir string
}

func (c *ManagedKeysCheck) Name() string     { return "managed_keys" }
func (c *ManagedKeysCheck) Category() string { return "SSH_CONFIG" }

func (c *ManagedKeysCheck) Run() CheckResult {
	path := sshConfigPath(c.Path)
	entries, err := sshutil.ParseSSHConfigFile(path)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusWarn,
			Message: "Skipped: SSH config doesn't parse",
		}
	}

	keyDir := c.KeyDir
	if keyDir != "" {
		keyDir = config.ExpandTilde(keyDir)
	}

	var managed, missing []string
	for _, e := range entries {
		if e.IdentityFile == "" {
			continue
		}
		if keyDir != "" && !strings.HasPrefix(e.IdentityFile, keyDir+string(filepath.Separator)) {
			continue
		}
		managed = append(managed, e.Alias)
		if !e.KeyOnDisk() {
			missing = append(missing, e.Alias)
		}
	}
	sort.Strings(missing)

	if len(managed) == 0 {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No managed host entries yet",
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%d host entr%s missing identity files: %s", len(missing), pluralizeY(len(missing)), strings.Join(missing, ", ")),
			Suggestion: "Run 'keyup bootstrap <alias>' for each to regenerate and reinstall the key.",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("All %d managed identit%s on disk", len(managed), pluralizeY(len(managed))),
	}
}

func (c *ManagedKeysCheck) Fix() error {
	return nil // Regenerating keys means re-bootstrapping the host
}

// NewSSHConfigChecks creates the ~/.ssh/config checks.
func NewSSHConfigChecks(keyDir string) []Check {
	return []Check{
		&SSHConfigParseCheck{},
		&ManagedKeysCheck{KeyDir: keyDir},
	}
}

func sshConfigPath(override string) string {
	if override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ssh", "config")
	}
	return filepath.Join(home, ".ssh", "config")
}

// pluralizeY handles the y/ies words (entry, identity).
func pluralizeY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
