// Package sshcfg maintains per-host blocks in the user's SSH client
// config (~/.ssh/config). It only ever appends: existing blocks are
// detected textually and left byte-for-byte untouched, so hand-edits
// and comments survive every run. Drift inside an existing block is
// reported by doctor, not reconciled here.
package sshcfg

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/logger"
	"github.com/rileyhilliard/keyup/internal/util"
)

// Entry describes one Host block.
type Entry struct {
	// HostID is the alias written after "Host".
	HostID string

	// HostName is the real address. Omitted from the block when empty
	// or identical to HostID.
	HostName string

	// User is the login name on the remote.
	User string

	// Port is the SSH port. Zero omits the Port line.
	Port int

	// IdentityFile is the private key path for this host.
	IdentityFile string
}

// Merger appends Host blocks to a single SSH config file.
type Merger struct {
	path string
	log  logger.Logger
}

// NewMerger creates a Merger for the config at path.
// An empty path means ~/.ssh/config.
func NewMerger(path string, log logger.Logger) *Merger {
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".ssh", "config")
		} else {
			path = filepath.Join(".ssh", "config")
		}
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Merger{path: path, log: log}
}

// Path returns the config file path.
func (m *Merger) Path() string {
	return m.path
}

// UpsertHost ensures a Host block exists for e.HostID.
// When a block for the alias already exists the file is not touched at
// all, whatever the block contains. Returns true when a new block was
// appended.
func (m *Merger) UpsertHost(e Entry) (bool, error) {
	if err := validateEntry(e); err != nil {
		return false, err
	}

	content, err := os.ReadFile(m.path)
	if err != nil && !os.IsNotExist(err) {
		return false, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Cannot read SSH config: %s", m.path),
			"Check permissions on ~/.ssh/config.")
	}

	if HasHost(content, e.HostID) {
		m.log.Debug("host %q already declared in %s, leaving file untouched", e.HostID, m.path)
		return false, nil
	}

	if err := m.appendBlock(content, e); err != nil {
		return false, err
	}

	// Re-read and confirm the declaration landed
	written, err := os.ReadFile(m.path)
	if err != nil {
		return false, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Cannot re-read SSH config after update: %s", m.path),
			"Check permissions on ~/.ssh/config.")
	}
	if !HasHost(written, e.HostID) {
		return false, errors.New(errors.ErrConfig,
			fmt.Sprintf("Appended block for %q but it did not take effect", e.HostID),
			"Inspect "+m.path+" by hand.")
	}
	if err := m.verifyResolves(written, e); err != nil {
		return false, err
	}

	m.log.Info("added Host block for %q to %s", e.HostID, m.path)
	return true, nil
}

// verifyResolves re-parses the updated file with the same library the
// verify command uses and checks the IdentityFile resolves back to what
// was written. Content after a Match directive is dropped before
// parsing, as the library can't decode Match blocks. A shadowed
// IdentityFile is only logged: ssh accumulates IdentityFile directives
// across matching blocks, so an earlier wildcard doesn't unseat ours.
func (m *Merger) verifyResolves(content []byte, e Entry) error {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			lines = lines[:i]
			break
		}
	}

	cfg, err := ssh_config.Decode(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("SSH config at %s no longer parses after update", m.path),
			"Inspect the file by hand; the appended block is at the end.")
	}

	if e.IdentityFile != "" {
		if got, _ := cfg.Get(e.HostID, "IdentityFile"); got != e.IdentityFile {
			m.log.Debug("IdentityFile for %q resolves to %q (wrote %q); an earlier block or Match directive takes precedence", e.HostID, got, e.IdentityFile)
		}
	}
	return nil
}

// appendBlock writes the rendered block to the end of the file, creating
// file and directory with owner-only permissions if needed. Appending is
// the only write this package performs, so existing bytes are preserved
// by construction.
func (m *Merger) appendBlock(existing []byte, e Entry) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to create directory: %s", dir),
			"Check permissions on the home directory.")
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Cannot open SSH config for appending: %s", m.path),
			"Check permissions on ~/.ssh/config.")
	}
	defer f.Close()

	var b strings.Builder
	if len(existing) > 0 {
		if !bytes.HasSuffix(existing, []byte("\n")) {
			b.WriteString("\n")
		}
		// Blank line between the previous block and ours
		b.WriteString("\n")
	}
	b.WriteString(RenderBlock(e))

	if _, err := f.WriteString(b.String()); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to append to SSH config: %s", m.path),
			"Check disk space and permissions.")
	}

	return f.Close()
}

// RenderBlock renders the Host block for an entry.
func RenderBlock(e Entry) string {
	var b strings.Builder
	b.WriteString("Host ")
	b.WriteString(e.HostID)
	b.WriteString("\n")

	if e.HostName != "" && e.HostName != e.HostID {
		b.WriteString("    HostName ")
		b.WriteString(e.HostName)
		b.WriteString("\n")
	}
	if e.IdentityFile != "" {
		b.WriteString("    IdentityFile ")
		b.WriteString(e.IdentityFile)
		b.WriteString("\n")
	}
	if e.User != "" {
		b.WriteString("    User ")
		b.WriteString(e.User)
		b.WriteString("\n")
	}
	if e.Port > 0 {
		b.WriteString("    Port ")
		b.WriteString(util.Itoa(e.Port))
		b.WriteString("\n")
	}

	return b.String()
}

// HasHost reports whether content declares hostID on any Host line.
// Detection is textual: a line whose first field is "Host" (any case)
// and whose remaining fields include the id, quoted or not.
func HasHost(content []byte, hostID string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.EqualFold(fields[0], "Host") {
			continue
		}
		for _, pattern := range fields[1:] {
			if unquote(pattern) == hostID {
				return true
			}
		}
	}
	return false
}

// unquote strips one layer of surrounding double quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func validateEntry(e Entry) error {
	if strings.TrimSpace(e.HostID) == "" {
		return errors.New(errors.ErrConfig,
			"Host block needs an alias",
			"Pass a host identifier to write after 'Host'.")
	}
	if strings.ContainsAny(e.HostID, " \t\n") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host alias %q contains whitespace", e.HostID),
			"SSH aliases can't contain spaces.")
	}
	if e.Port < 0 || e.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Port %d is out of range", e.Port),
			"Ports go from 1 to 65535.")
	}
	return nil
}
