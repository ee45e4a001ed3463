package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

// Target host for integration tests. These exercise a real sshd and
// mutate the connected account, so they only run when the environment
// points at a disposable test server:
//
//	KEYUP_TEST_SSH_HOST      hostname or IP (required)
//	KEYUP_TEST_SSH_USER      login name (required)
//	KEYUP_TEST_SSH_PASSWORD  password for that login (required)
//	KEYUP_TEST_SSH_PORT      sshd port (optional, default 22)

// RequireSSH skips the test unless the SSH test server env is set.
func RequireSSH(t *testing.T) {
	t.Helper()
	if os.Getenv("KEYUP_TEST_SSH_HOST") == "" {
		t.Skip("Skipping: KEYUP_TEST_SSH_HOST not set (SSH test server not available)")
	}
	if os.Getenv("KEYUP_TEST_SSH_USER") == "" {
		t.Skip("Skipping: KEYUP_TEST_SSH_USER not set")
	}
	if os.Getenv("KEYUP_TEST_SSH_PASSWORD") == "" {
		t.Skip("Skipping: KEYUP_TEST_SSH_PASSWORD not set")
	}
}

// GetTestTarget returns the test server coordinates from the
// environment. Call RequireSSH first.
func GetTestTarget(t *testing.T) (host string, port int, user, password string) {
	t.Helper()
	host = os.Getenv("KEYUP_TEST_SSH_HOST")
	user = os.Getenv("KEYUP_TEST_SSH_USER")
	password = os.Getenv("KEYUP_TEST_SSH_PASSWORD")

	port = 22
	if p := os.Getenv("KEYUP_TEST_SSH_PORT"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("KEYUP_TEST_SSH_PORT is not a number: %q", p)
		}
		port = parsed
	}
	return host, port, user, password
}

// GetDialOptions builds password dial options for the test server with
// known_hosts redirected into the test's temp dir, so runs never touch
// the developer's real ~/.ssh/known_hosts.
func GetDialOptions(t *testing.T) sshutil.DialOptions {
	t.Helper()
	host, port, user, password := GetTestTarget(t)
	return sshutil.DialOptions{
		Host:           host,
		Port:           port,
		User:           user,
		Password:       password,
		Timeout:        10 * time.Second,
		KnownHostsPath: filepath.Join(t.TempDir(), "known_hosts"),
	}
}

// GetSSHClient opens a password-authenticated connection to the test
// server. The connection is closed automatically when the test ends.
func GetSSHClient(t *testing.T) *sshutil.Client {
	t.Helper()
	RequireSSH(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	client, err := sshutil.DialPassword(ctx, GetDialOptions(t))
	if err != nil {
		t.Fatalf("Failed to connect to test SSH server: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

// RemoteTestDir returns a unique path under the remote home for this
// test run. Callers own cleanup via CleanupRemotePath.
func RemoteTestDir() string {
	return fmt.Sprintf("~/keyup-test-%d", time.Now().UnixNano())
}

// CleanupRemotePath removes a path on the remote host. Safe to call
// even if the path doesn't exist.
func CleanupRemotePath(t *testing.T, client *sshutil.Client, path string) {
	t.Helper()
	if client == nil {
		return
	}
	_, _, _, _ = client.Exec(fmt.Sprintf("rm -rf %s", path))
}

// ReadRemoteFile reads a file from the remote host.
func ReadRemoteFile(t *testing.T, client *sshutil.Client, path string) string {
	t.Helper()
	stdout, stderr, exitCode, err := client.Exec(fmt.Sprintf("cat %s", path))
	if err != nil {
		t.Fatalf("Failed to read remote file %s: %v", path, err)
	}
	if exitCode != 0 {
		t.Fatalf("Failed to read remote file %s: %s", path, string(stderr))
	}
	return string(stdout)
}

// RemoteFileExists checks whether a path exists on the remote host.
func RemoteFileExists(t *testing.T, client *sshutil.Client, path string) bool {
	t.Helper()
	_, _, exitCode, err := client.Exec(fmt.Sprintf("test -e %s", path))
	if err != nil {
		return false
	}
	return exitCode == 0
}

// RemoteMode returns the octal permission bits of a remote path, e.g.
// "700". Works with both GNU and BSD stat.
func RemoteMode(t *testing.T, client *sshutil.Client, path string) string {
	t.Helper()
	cmd := fmt.Sprintf("stat -c '%%a' %s 2>/dev/null || stat -f '%%OLp' %s", path, path)
	stdout, stderr, exitCode, err := client.Exec(cmd)
	if err != nil {
		t.Fatalf("Failed to stat %s: %v", path, err)
	}
	if exitCode != 0 {
		t.Fatalf("Failed to stat %s: %s", path, string(stderr))
	}
	return strings.TrimSpace(string(stdout))
}

// RemoveAuthorizedKey strips one key's entries from the remote account's
// real authorized_keys file. Matching is by the key material column, so
// comments don't matter. Used to undo what a bootstrap run installed.
func RemoveAuthorizedKey(t *testing.T, client *sshutil.Client, publicKey string) {
	t.Helper()
	material := keyMaterial(publicKey)
	if material == "" {
		return
	}
	cmd := fmt.Sprintf(
		"[ -f ~/.ssh/authorized_keys ] && grep -vF '%s' ~/.ssh/authorized_keys > ~/.ssh/authorized_keys.tmp; "+
			"[ -f ~/.ssh/authorized_keys.tmp ] && mv ~/.ssh/authorized_keys.tmp ~/.ssh/authorized_keys; true",
		material)
	_, _, _, _ = client.Exec(cmd)
}

// keyMaterial extracts the base64 column of an authorized_keys line.
func keyMaterial(publicKey string) string {
	fields := strings.Fields(publicKey)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
