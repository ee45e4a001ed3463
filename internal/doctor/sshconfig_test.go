package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSSHConfigParseCheck_HealthyConfig(t *testing.T) {
	path := writeSSHConfig(t, `Host web1
    HostName 10.0.0.5
    User ops

Host db1
    HostName 10.0.0.6
`)

	c := &SSHConfigParseCheck{Path: path}
	result := c.Run()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "2 host entries")
}

func TestSSHConfigParseCheck_MissingFile(t *testing.T) {
	c := &SSHConfigParseCheck{Path: filepath.Join(t.TempDir(), "config")}
	result := c.Run()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "No SSH config")
}

func TestSSHConfigParseCheck_BrokenFile(t *testing.T) {
	path := writeSSHConfig(t, "Host web1\n    IdentityFile \"unterminated\n")

	c := &SSHConfigParseCheck{Path: path}
	result := c.Run()
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "doesn't parse")
}

func TestManagedKeysCheck_AllPresent(t *testing.T) {
	keyDir := t.TempDir()
	keyPath := filepath.Join(keyDir, "id_ed25519_web1")
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))

	path := writeSSHConfig(t, `Host web1
    HostName 10.0.0.5
    IdentityFile `+keyPath+`
`)

	c := &ManagedKeysCheck{Path: path, KeyDir: keyDir}
	result := c.Run()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "All 1 managed identity on disk")
}

func TestManagedKeysCheck_MissingKeyWarns(t *testing.T) {
	keyDir := t.TempDir()
	path := writeSSHConfig(t, `Host web1
    HostName 10.0.0.5
    IdentityFile `+filepath.Join(keyDir, "id_ed25519_web1")+`
`)

	c := &ManagedKeysCheck{Path: path, KeyDir: keyDir}
	result := c.Run()
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "web1")
	assert.Contains(t, result.Suggestion, "keyup bootstrap")
}

func TestManagedKeysCheck_IgnoresForeignIdentities(t *testing.T) {
	keyDir := filepath.Join(t.TempDir(), "managed")
	require.NoError(t, os.Mkdir(keyDir, 0o700))

	// The identity lives outside the key directory, so it isn't ours
	// to fret about.
	path := writeSSHConfig(t, `Host personal
    HostName github.com
    IdentityFile /home/someone/.ssh/id_rsa
`)

	c := &ManagedKeysCheck{Path: path, KeyDir: keyDir}
	result := c.Run()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "No managed host entries")
}

func TestManagedKeysCheck_EmptyConfig(t *testing.T) {
	c := &ManagedKeysCheck{Path: filepath.Join(t.TempDir(), "config")}
	result := c.Run()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "No managed host entries")
}

func TestNewSSHConfigChecks(t *testing.T) {
	checks := NewSSHConfigChecks("~/.ssh")
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.Equal(t, "SSH_CONFIG", c.Category())
	}
}
