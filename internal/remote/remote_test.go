package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/keyup/internal/errors"
	sshtesting "github.com/rileyhilliard/keyup/pkg/sshutil/testing"
)

const testKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIFohK2wG7SkGCqdBbW8dYZTPiQbzduCFmJoYS6DRbm13 keyup:web1"

func newTestMutator() (*Mutator, *sshtesting.MockClient) {
	client := sshtesting.NewMockClient("web1")
	return NewMutator(client, nil), client
}

func countExact(lines []string, want string) int {
	n := 0
	for _, line := range lines {
		if line == want {
			n++
		}
	}
	return n
}

func TestEnsureSSHDir(t *testing.T) {
	m, client := newTestMutator()

	require.NoError(t, m.EnsureSSHDir())
	assert.True(t, client.GetFS().IsDir("/root/.ssh"))
	assert.Contains(t, client.History(), `mkdir -p ~/'.ssh' && chmod 700 ~/'.ssh'`)

	// Second run is a no-op, not an error.
	require.NoError(t, m.EnsureSSHDir())
}

func TestEnsureSSHDir_RespectsRemoteHome(t *testing.T) {
	m, client := newTestMutator()
	client.SetHome("/home/ops")

	require.NoError(t, m.EnsureSSHDir())
	assert.True(t, client.GetFS().IsDir("/home/ops/.ssh"))
	assert.False(t, client.GetFS().IsDir("/root/.ssh"))
}

func TestEnsureAuthorizedKeys(t *testing.T) {
	m, client := newTestMutator()

	require.NoError(t, m.EnsureSSHDir())
	require.NoError(t, m.EnsureAuthorizedKeys())
	assert.True(t, client.GetFS().IsFile("/root/.ssh/authorized_keys"))
	assert.Contains(t, client.History(), `touch ~/'.ssh/authorized_keys' && chmod 600 ~/'.ssh/authorized_keys'`)
}

func TestEnsureAuthorizedKeys_PreservesExistingContent(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithFiles(client, map[string]string{
		"/root/.ssh/authorized_keys": "ssh-rsa AAAAB3Nza... old@laptop\n",
	})

	require.NoError(t, m.EnsureAuthorizedKeys())

	content, err := client.GetFS().ReadFile("/root/.ssh/authorized_keys")
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa AAAAB3Nza... old@laptop\n", string(content))
}

func TestEnsureAuthorizedKeys_WithoutDirFails(t *testing.T) {
	m, _ := newTestMutator()

	err := m.EnsureAuthorizedKeys()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
	assert.Contains(t, err.Error(), "Creating ~/.ssh/authorized_keys")
}

func TestInstallKey_AddsThenSkips(t *testing.T) {
	m, client := newTestMutator()
	require.NoError(t, m.EnsureSSHDir())
	require.NoError(t, m.EnsureAuthorizedKeys())

	added, err := m.InstallKey(testKey)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{testKey}, client.GetFS().Lines("/root/.ssh/authorized_keys"))

	before, err := client.GetFS().ReadFile("/root/.ssh/authorized_keys")
	require.NoError(t, err)

	// Re-running must not duplicate the line or touch the file at all.
	added, err = m.InstallKey(testKey)
	require.NoError(t, err)
	assert.False(t, added)

	after, err := client.GetFS().ReadFile("/root/.ssh/authorized_keys")
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestInstallKey_PreservesNeighborKeys(t *testing.T) {
	m, client := newTestMutator()
	existing := "ssh-rsa AAAAB3Nza... teammate@laptop"
	sshtesting.WithFiles(client, map[string]string{
		"/root/.ssh/authorized_keys": existing + "\n",
	})

	added, err := m.InstallKey(testKey)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{existing, testKey}, client.GetFS().Lines("/root/.ssh/authorized_keys"))
}

func TestInstallKey_TrimsSurroundingWhitespace(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithFiles(client, map[string]string{
		"/root/.ssh/authorized_keys": "",
	})

	added, err := m.InstallKey(testKey + "\n")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{testKey}, client.GetFS().Lines("/root/.ssh/authorized_keys"))
}

func TestInstallKey_RejectsBadMaterial(t *testing.T) {
	m, _ := newTestMutator()

	_, err := m.InstallKey("")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = m.InstallKey("ssh-ed25519 AAAA\nssh-ed25519 BBBB")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestInstallKey_MissingFileIsRemoteError(t *testing.T) {
	m, _ := newTestMutator()

	// No EnsureAuthorizedKeys first: the presence check can't read the
	// file, which must surface as an error, not as "key absent".
	_, err := m.InstallKey(testKey)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
	assert.Contains(t, err.Error(), "Can't check")
}

func TestEnablePubkeyAuth_DirectiveTotality(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{
			name:   "commented out",
			config: "Port 22\n#PubkeyAuthentication yes\nPasswordAuthentication yes\n",
		},
		{
			name:   "commented with space",
			config: "Port 22\n# PubkeyAuthentication no\nPasswordAuthentication yes\n",
		},
		{
			name:   "set to another value",
			config: "Port 22\nPubkeyAuthentication no\nPasswordAuthentication yes\n",
		},
		{
			name:   "absent entirely",
			config: "Port 22\nPasswordAuthentication yes\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, client := newTestMutator()
			sshtesting.WithSshdConfig(client, tt.config)

			require.NoError(t, m.EnablePubkeyAuth())

			lines := client.GetFS().Lines("/etc/ssh/sshd_config")
			assert.Equal(t, 1, countExact(lines, "PubkeyAuthentication yes"),
				"want exactly one active directive, got lines: %v", lines)
			for _, line := range lines {
				if line == "PubkeyAuthentication yes" {
					continue
				}
				assert.NotContains(t, line, "PubkeyAuthentication",
					"stale directive left behind: %q", line)
			}
			// Unrelated lines survive untouched.
			assert.Equal(t, 1, countExact(lines, "Port 22"))
			assert.Equal(t, 1, countExact(lines, "PasswordAuthentication yes"))
		})
	}
}

func TestEnablePubkeyAuth_RewritesEveryOccurrence(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithSshdConfig(client, strings.Join([]string{
		"Include /etc/ssh/sshd_config.d/*.conf",
		"#PubkeyAuthentication yes",
		"Match User deploy",
		"    PubkeyAuthentication no",
		"",
	}, "\n"))

	require.NoError(t, m.EnablePubkeyAuth())

	lines := client.GetFS().Lines("/etc/ssh/sshd_config")
	// Total substitution: the Match-scoped override is flattened into the
	// global setting as well.
	assert.Equal(t, 2, countExact(lines, "PubkeyAuthentication yes"))
	assert.Equal(t, 0, countExact(lines, "    PubkeyAuthentication no"))
	assert.Equal(t, 1, countExact(lines, "Match User deploy"))
}

func TestDisablePasswordAuth_DirectiveTotality(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{name: "commented out", config: "#PasswordAuthentication yes\nPort 22\n"},
		{name: "set to yes", config: "PasswordAuthentication yes\nPort 22\n"},
		{name: "absent entirely", config: "Port 22\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, client := newTestMutator()
			sshtesting.WithSshdConfig(client, tt.config)

			require.NoError(t, m.DisablePasswordAuth())

			lines := client.GetFS().Lines("/etc/ssh/sshd_config")
			assert.Equal(t, 1, countExact(lines, "PasswordAuthentication no"))
			assert.Equal(t, 0, countExact(lines, "PasswordAuthentication yes"))
			assert.Equal(t, 0, countExact(lines, "#PasswordAuthentication yes"))
		})
	}
}

func TestSetDirective_Idempotent(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithSshdConfig(client, "#PubkeyAuthentication yes\nPort 22\n")

	require.NoError(t, m.EnablePubkeyAuth())
	first, err := client.GetFS().ReadFile("/etc/ssh/sshd_config")
	require.NoError(t, err)

	require.NoError(t, m.EnablePubkeyAuth())
	second, err := client.GetFS().ReadFile("/etc/ssh/sshd_config")
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSetDirective_MissingConfigIsRemoteError(t *testing.T) {
	m, _ := newTestMutator()

	err := m.EnablePubkeyAuth()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
	assert.Contains(t, err.Error(), "Can't read /etc/ssh/sshd_config")
}

func TestBackupConfig(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithSshdConfig(client, "PasswordAuthentication yes\n")

	require.NoError(t, m.BackupConfig())
	backup, err := client.GetFS().ReadFile("/etc/ssh/sshd_config.backup")
	require.NoError(t, err)
	assert.Equal(t, "PasswordAuthentication yes\n", string(backup))
	assert.Contains(t, client.History(), `cp '/etc/ssh/sshd_config' '/etc/ssh/sshd_config.backup'`)

	// A later run replaces the backup with the current config.
	require.NoError(t, m.DisablePasswordAuth())
	require.NoError(t, m.BackupConfig())
	backup, err = client.GetFS().ReadFile("/etc/ssh/sshd_config.backup")
	require.NoError(t, err)
	assert.Equal(t, "PasswordAuthentication no\n", string(backup))
}

func TestBackupConfig_MissingConfigFails(t *testing.T) {
	m, _ := newTestMutator()

	err := m.BackupConfig()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
}

func TestRestartService_PrefersRHELUnit(t *testing.T) {
	m, client := newTestMutator()

	unit, err := m.RestartService()
	require.NoError(t, err)
	assert.Equal(t, "sshd.service", unit)
	assert.Equal(t, []string{"sshd.service"}, client.Restarted())
	assert.Contains(t, client.History(), "systemctl list-unit-files sshd.service --no-legend --no-pager")
	assert.Contains(t, client.History(), "systemctl restart sshd.service")
}

func TestRestartService_FallsBackToDebianUnit(t *testing.T) {
	m, client := newTestMutator()
	client.SetUnits("ssh")

	unit, err := m.RestartService()
	require.NoError(t, err)
	assert.Equal(t, "ssh.service", unit)
	assert.Equal(t, []string{"ssh.service"}, client.Restarted())
}

func TestRestartService_NoUnitAvailable(t *testing.T) {
	m, client := newTestMutator()
	client.SetUnits()

	unit, err := m.RestartService()
	require.Error(t, err)
	assert.Empty(t, unit)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
	assert.Empty(t, client.Restarted())
}

func TestInstallKey_CommandShape(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithFiles(client, map[string]string{
		"/root/.ssh/authorized_keys": "",
	})

	_, err := m.InstallKey(testKey)
	require.NoError(t, err)

	history := client.History()
	require.Len(t, history, 2)
	// Key material travels base64 wrapped and is decoded on the far side;
	// the raw line never appears in shell syntax.
	assert.True(t, strings.HasPrefix(history[0], `k="$(printf '%s' '`), "check command: %s", history[0])
	assert.Contains(t, history[0], `| base64 -d)"; grep -qxF -- "$k" ~/'.ssh/authorized_keys'`)
	assert.Contains(t, history[1], `| base64 -d)"; printf '%s\n' "$k" >> ~/'.ssh/authorized_keys'`)
	assert.NotContains(t, history[0], testKey)
	assert.NotContains(t, history[1], testKey)
}

func TestSetDirective_CommandShape(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithSshdConfig(client, "#PasswordAuthentication yes\n")

	require.NoError(t, m.DisablePasswordAuth())

	assert.Contains(t, client.History(),
		`grep -qE '^[#[:space:]]*PasswordAuthentication' '/etc/ssh/sshd_config'`)
	assert.Contains(t, client.History(),
		`sed -i -E 's|^[#[:space:]]*PasswordAuthentication.*|PasswordAuthentication no|' '/etc/ssh/sshd_config'`)
}

func TestSetDirective_AppendCommandShape(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithSshdConfig(client, "Port 22\n")

	require.NoError(t, m.EnablePubkeyAuth())

	assert.Contains(t, client.History(),
		`printf '%s\n' 'PubkeyAuthentication yes' >> '/etc/ssh/sshd_config'`)
}

func TestMutator_TransportErrorIsCoded(t *testing.T) {
	m, client := newTestMutator()
	require.NoError(t, client.Close())

	err := m.EnsureSSHDir()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
}

func TestMutator_InjectedFailureCarriesStderr(t *testing.T) {
	m, client := newTestMutator()
	sshtesting.WithSshdConfig(client, "PasswordAuthentication yes\n")
	client.SetCommandResponse(`^cp `, sshtesting.CommandResponse{
		Stderr:   []byte("cp: cannot create regular file '/etc/ssh/sshd_config.backup': Permission denied\n"),
		ExitCode: 1,
	})

	err := m.BackupConfig()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRemote))
	assert.Contains(t, err.Error(), "Backing up /etc/ssh/sshd_config failed (exit 1)")

	var keyupErr *errors.Error
	require.ErrorAs(t, err, &keyupErr)
	assert.Contains(t, keyupErr.Suggestion, "Permission denied")
}

func TestMutator_CustomPaths(t *testing.T) {
	m, client := newTestMutator()
	m.SSHDir = "~/.config/dropbear"
	m.AuthorizedKeys = "~/.config/dropbear/authorized_keys"

	require.NoError(t, m.EnsureSSHDir())
	require.NoError(t, m.EnsureAuthorizedKeys())
	added, err := m.InstallKey(testKey)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{testKey}, client.GetFS().Lines("/root/.config/dropbear/authorized_keys"))
}
