package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/keyup/internal/errors"
)

func TestVerify_RejectsBadTimeout(t *testing.T) {
	err := Verify(VerifyOptions{Alias: "web1", Timeout: "soon"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "soon")
}

func TestVerify_UnknownAlias(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	sshDir := filepath.Join(home, ".ssh")
	require.NoError(t, os.MkdirAll(sshDir, 0o700))
	configContent := "Host db\n    HostName 10.0.0.9\n    User ops\n"
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "config"), []byte(configContent), 0o600))

	err := Verify(VerifyOptions{Alias: "web1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "web1")
}

func TestVerify_NoSSHConfig(t *testing.T) {
	// A fresh machine has no ~/.ssh/config at all; verify should still
	// produce the no-Host-block error rather than an open failure.
	t.Setenv("HOME", t.TempDir())

	err := Verify(VerifyOptions{Alias: "web1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "No Host block")
}

func TestVerifyCommand_UsesTimeoutFlag(t *testing.T) {
	oldTimeout := verifyTimeoutFlag
	defer func() { verifyTimeoutFlag = oldTimeout }()

	verifyTimeoutFlag = "not-a-duration"
	err := verifyCommand("web1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}
