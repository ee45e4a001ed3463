// Package keys manages per-host SSH key pairs. Generation is delegated
// to ssh-keygen so keys match what users would create by hand, in the
// formats their other tooling expects.
package keys

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/logger"
)

// KeyType is the only key type keyup generates.
const KeyType = "ed25519"

// Pair describes a host's key pair on disk.
type Pair struct {
	HostID         string // Identifier the pair was generated for
	PrivateKeyPath string // Full path to private key
	PublicKeyPath  string // Path to public key
	PublicKey      string // Public key material, single authorized_keys line
}

// Manager creates and reuses key pairs under a fixed directory.
type Manager struct {
	dir string
	log logger.Logger
}

// NewManager creates a Manager storing keys in dir.
// An empty dir means ~/.ssh.
func NewManager(dir string, log logger.Logger) *Manager {
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".ssh")
		} else {
			dir = ".ssh"
		}
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Manager{dir: dir, log: log}
}

// Dir returns the key directory.
func (m *Manager) Dir() string {
	return m.dir
}

// KeyPath returns the deterministic private key path for a host.
// The same host always maps to the same file, so re-runs reuse the
// existing pair instead of generating a new one.
func (m *Manager) KeyPath(hostID string) string {
	return filepath.Join(m.dir, "id_ed25519_"+SanitizeHostID(hostID))
}

// EnsureKeyPair returns the key pair for hostID, generating it if absent.
// The second return is true when a new pair was created.
func (m *Manager) EnsureKeyPair(hostID string) (Pair, bool, error) {
	if strings.TrimSpace(hostID) == "" {
		return Pair{}, false, errors.New(errors.ErrValidation,
			"Host identifier is required for key generation",
			"Pass a host like: keyup bootstrap ops@10.0.0.5")
	}

	privPath := m.KeyPath(hostID)
	pubPath := privPath + ".pub"

	_, privErr := os.Stat(privPath)
	_, pubErr := os.Stat(pubPath)

	switch {
	case privErr == nil && pubErr == nil:
		// Existing pair: reuse as-is
		material, err := ReadPublicKey(pubPath)
		if err != nil {
			return Pair{}, false, err
		}
		m.log.Debug("reusing existing key pair at %s", privPath)
		return Pair{
			HostID:         hostID,
			PrivateKeyPath: privPath,
			PublicKeyPath:  pubPath,
			PublicKey:      material,
		}, false, nil

	case privErr == nil && os.IsNotExist(pubErr):
		// Private key survived but the .pub file is gone. Rederive it
		// rather than generating a fresh pair that would orphan the
		// already-installed key on remotes.
		material, err := m.rederivePublicKey(privPath, pubPath)
		if err != nil {
			return Pair{}, false, err
		}
		m.log.Info("rederived missing public key at %s", pubPath)
		return Pair{
			HostID:         hostID,
			PrivateKeyPath: privPath,
			PublicKeyPath:  pubPath,
			PublicKey:      material,
		}, false, nil

	case os.IsNotExist(privErr) && pubErr == nil:
		return Pair{}, false, errors.New(errors.ErrKeygen,
			fmt.Sprintf("Found a stray public key at %s with no private key", pubPath),
			"Remove the orphaned .pub file, or restore the private key next to it.")

	case os.IsNotExist(privErr) && os.IsNotExist(pubErr):
		material, err := m.generate(hostID, privPath, pubPath)
		if err != nil {
			return Pair{}, false, err
		}
		return Pair{
			HostID:         hostID,
			PrivateKeyPath: privPath,
			PublicKeyPath:  pubPath,
			PublicKey:      material,
		}, true, nil

	default:
		// Stat failed for a reason other than non-existence
		err := privErr
		if err == nil {
			err = pubErr
		}
		return Pair{}, false, errors.WrapWithCode(err, errors.ErrKeygen,
			fmt.Sprintf("Cannot inspect key files under %s", m.dir),
			"Check permissions on the key directory.")
	}
}

// generate creates a new pair via ssh-keygen.
func (m *Manager) generate(hostID, privPath, pubPath string) (string, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrKeygen,
			fmt.Sprintf("Failed to create key directory: %s", m.dir),
			"Check permissions on the parent directory.")
	}

	args := []string{
		"-t", KeyType,
		"-f", privPath,
		"-N", "", // no passphrase: these keys exist for unattended logins
		"-C", "keyup-" + SanitizeHostID(hostID),
	}

	cmd := exec.Command("ssh-keygen", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrKeygen,
			fmt.Sprintf("ssh-keygen failed: %s", strings.TrimSpace(string(output))),
			"Ensure ssh-keygen is installed and accessible.")
	}

	// Verify both halves landed on disk
	if _, err := os.Stat(privPath); err != nil {
		return "", errors.New(errors.ErrKeygen,
			"Key generation completed but the private key file is missing",
			"Check disk space and permissions.")
	}
	if _, err := os.Stat(pubPath); err != nil {
		return "", errors.New(errors.ErrKeygen,
			"Key generation completed but the public key file is missing",
			"Check disk space and permissions.")
	}

	material, err := ReadPublicKey(pubPath)
	if err != nil {
		return "", err
	}

	m.log.Info("generated %s key pair at %s", KeyType, privPath)
	return material, nil
}

// rederivePublicKey reconstructs the .pub file from the private key.
func (m *Manager) rederivePublicKey(privPath, pubPath string) (string, error) {
	cmd := exec.Command("ssh-keygen", "-y", "-f", privPath)
	output, err := cmd.Output()
	if err != nil {
		detail := err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return "", errors.WrapWithCode(err, errors.ErrKeygen,
			fmt.Sprintf("Failed to derive public key from %s: %s", privPath, detail),
			"The private key may be corrupt or passphrase-protected.")
	}

	material := strings.TrimSpace(string(output))
	if err := os.WriteFile(pubPath, []byte(material+"\n"), 0o644); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrKeygen,
			fmt.Sprintf("Failed to write public key: %s", pubPath),
			"Check permissions on the key directory.")
	}

	return material, nil
}

// ReadPublicKey reads the contents of a public key file.
func ReadPublicKey(pubPath string) (string, error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrKeygen,
			fmt.Sprintf("Failed to read public key: %s", pubPath),
			"Check that the file exists and is readable.")
	}
	return strings.TrimSpace(string(data)), nil
}

// SanitizeHostID maps a host identifier to a filesystem-safe token.
// Anything outside [A-Za-z0-9._-] becomes '-'.
func SanitizeHostID(hostID string) string {
	var b strings.Builder
	b.Grow(len(hostID))
	for _, r := range hostID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
