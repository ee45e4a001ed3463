// Package remote mutates the SSH authentication surface of a remote
// host over an established connection: the authorized_keys file, the
// two sshd_config directives keyup cares about, and the sshd service
// itself.
//
// Commands run as the connected user. Editing /etc/ssh/sshd_config and
// restarting the service require that user to have the privileges to do
// so; keyup does not wrap commands in sudo.
package remote

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/logger"
	"github.com/rileyhilliard/keyup/internal/util"
	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

// Default remote paths. Tilde paths are expanded by the remote shell,
// so they resolve against the connected user's home.
const (
	DefaultSSHDir         = "~/.ssh"
	DefaultAuthorizedKeys = "~/.ssh/authorized_keys"
	DefaultSshdConfig     = "/etc/ssh/sshd_config"
	DefaultBackupPath     = "/etc/ssh/sshd_config.backup"
)

// Mutator applies authentication changes on a remote host through an
// exec-only SSH transport. Every operation is idempotent, and every
// failure is fatal for the run: a host left half-configured must be
// surfaced, not papered over with retries.
type Mutator struct {
	client sshutil.SSHClient
	log    logger.Logger

	// Paths are overridable for tests and unusual layouts.
	SSHDir         string
	AuthorizedKeys string
	SshdConfig     string
	BackupPath     string
}

// NewMutator creates a Mutator operating over client.
func NewMutator(client sshutil.SSHClient, log logger.Logger) *Mutator {
	if log == nil {
		log = logger.Noop()
	}
	return &Mutator{
		client:         client,
		log:            log,
		SSHDir:         DefaultSSHDir,
		AuthorizedKeys: DefaultAuthorizedKeys,
		SshdConfig:     DefaultSshdConfig,
		BackupPath:     DefaultBackupPath,
	}
}

// EnsureSSHDir creates the remote ~/.ssh with owner-only permissions.
func (m *Mutator) EnsureSSHDir() error {
	dir := util.ShellQuotePreserveTilde(m.SSHDir)
	cmd := fmt.Sprintf("mkdir -p %s && chmod 700 %s", dir, dir)
	if err := m.mustRun(cmd, "Creating "+m.SSHDir); err != nil {
		return err
	}
	m.log.Debug("ensured %s with mode 700", m.SSHDir)
	return nil
}

// EnsureAuthorizedKeys creates the authorized_keys file with mode 0600
// if missing. An existing file keeps its content: touch never truncates.
func (m *Mutator) EnsureAuthorizedKeys() error {
	path := util.ShellQuotePreserveTilde(m.AuthorizedKeys)
	cmd := fmt.Sprintf("touch %s && chmod 600 %s", path, path)
	if err := m.mustRun(cmd, "Creating "+m.AuthorizedKeys); err != nil {
		return err
	}
	m.log.Debug("ensured %s with mode 600", m.AuthorizedKeys)
	return nil
}

// InstallKey appends the public key line to authorized_keys unless the
// exact line is already present. The material crosses the wire base64
// encoded and is decoded remotely, so key bytes are never interpolated
// into shell syntax. Returns whether a line was added.
func (m *Mutator) InstallKey(publicKey string) (bool, error) {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return false, errors.New(errors.ErrValidation,
			"No public key material to install",
			"Generate the key pair first.")
	}
	if strings.ContainsAny(publicKey, "\r\n") {
		return false, errors.New(errors.ErrValidation,
			"Public key material spans multiple lines",
			"authorized_keys entries are single lines; re-read the .pub file.")
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(publicKey))
	path := util.ShellQuotePreserveTilde(m.AuthorizedKeys)

	check := fmt.Sprintf(`k="$(printf '%%s' '%s' | base64 -d)"; grep -qxF -- "$k" %s`, encoded, path)
	_, stderr, code, err := m.run(check)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		m.log.Debug("public key already present in %s", m.AuthorizedKeys)
		return false, nil
	case 1:
		// Not present, append below
	default:
		return false, errors.New(errors.ErrRemote,
			fmt.Sprintf("Can't check %s (exit %d)", m.AuthorizedKeys, code),
			remoteSuggestion(stderr))
	}

	install := fmt.Sprintf(`k="$(printf '%%s' '%s' | base64 -d)"; printf '%%s\n' "$k" >> %s`, encoded, path)
	if err := m.mustRun(install, "Installing the public key"); err != nil {
		return false, err
	}
	m.log.Info("installed public key into %s", m.AuthorizedKeys)
	return true, nil
}

// EnablePubkeyAuth ensures sshd accepts public key logins.
func (m *Mutator) EnablePubkeyAuth() error {
	return m.setDirective("PubkeyAuthentication", "yes")
}

// DisablePasswordAuth locks the host to key-only logins. BackupConfig
// should run first: this is the one mutation that can lock you out when
// the key install went wrong.
func (m *Mutator) DisablePasswordAuth() error {
	return m.setDirective("PasswordAuthentication", "no")
}

// BackupConfig copies sshd_config to the backup path, overwriting any
// previous backup. Each run refreshes it, so the backup reflects the
// config as it stood before the most recent change, not the oldest one.
func (m *Mutator) BackupConfig() error {
	cmd := fmt.Sprintf("cp %s %s", util.ShellQuote(m.SshdConfig), util.ShellQuote(m.BackupPath))
	if err := m.mustRun(cmd, "Backing up "+m.SshdConfig); err != nil {
		return err
	}
	m.log.Info("backed up %s to %s", m.SshdConfig, m.BackupPath)
	return nil
}

// RestartService restarts the SSH daemon so directive changes take
// effect. The unit name differs across families: RHEL/CentOS ship
// sshd.service, Debian/Ubuntu ship ssh.service. The RHEL name is probed
// for first; when absent, the Debian name is used. Returns the unit
// that was restarted.
func (m *Mutator) RestartService() (string, error) {
	unit := "ssh.service"
	stdout, _, code, err := m.run("systemctl list-unit-files sshd.service --no-legend --no-pager")
	if err != nil {
		return "", err
	}
	if code == 0 && strings.Contains(stdout, "sshd.service") {
		unit = "sshd.service"
	}

	if err := m.mustRun("systemctl restart "+unit, "Restarting "+unit); err != nil {
		return "", err
	}
	m.log.Info("restarted %s", unit)
	return unit, nil
}

// setDirective forces an sshd_config directive to exactly one value,
// whatever its prior state. A present line (active, commented, or
// indented) is rewritten in place; an absent one is appended. Lines
// inside Match blocks get rewritten too: the outcome is one global
// setting, which is the point of the operation.
func (m *Mutator) setDirective(directive, value string) error {
	path := util.ShellQuote(m.SshdConfig)
	line := directive + " " + value

	check := fmt.Sprintf(`grep -qE '^[#[:space:]]*%s' %s`, directive, path)
	_, stderr, code, err := m.run(check)
	if err != nil {
		return err
	}

	switch code {
	case 0:
		rewrite := fmt.Sprintf(`sed -i -E 's|^[#[:space:]]*%s.*|%s|' %s`, directive, line, path)
		if err := m.mustRun(rewrite, "Rewriting "+directive); err != nil {
			return err
		}
	case 1:
		appendCmd := fmt.Sprintf(`printf '%%s\n' '%s' >> %s`, line, path)
		if err := m.mustRun(appendCmd, "Appending "+directive); err != nil {
			return err
		}
	default:
		return errors.New(errors.ErrRemote,
			fmt.Sprintf("Can't read %s (exit %d)", m.SshdConfig, code),
			remoteSuggestion(stderr))
	}

	m.log.Info("set %s %s in %s", directive, value, m.SshdConfig)
	return nil
}

// run executes one command. Transport failures surface as coded errors;
// non-zero exit codes do not, callers decide what they mean.
func (m *Mutator) run(cmd string) (stdout, stderr string, exitCode int, err error) {
	m.log.Debug("remote: %s", cmd)
	out, errOut, code, execErr := m.client.Exec(cmd)
	if execErr != nil {
		if errors.CodeOf(execErr) == "" {
			execErr = errors.WrapWithCode(execErr, errors.ErrRemote,
				"Remote command failed to execute",
				"Check the connection and rerun.")
		}
		return "", "", -1, execErr
	}
	return string(out), string(errOut), code, nil
}

// mustRun executes one command and requires a zero exit.
func (m *Mutator) mustRun(cmd, what string) error {
	_, stderr, code, err := m.run(cmd)
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.New(errors.ErrRemote,
			fmt.Sprintf("%s failed (exit %d)", what, code),
			remoteSuggestion(stderr))
	}
	return nil
}

func remoteSuggestion(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return "Rerun with KEYUP_DEBUG=1 to see the failing command."
	}
	return "Remote said: " + stderr
}
