package sshutil

// SSHClient is the surface the rest of keyup talks to a remote host
// through. Both the real Client and the mock in pkg/sshutil/testing
// satisfy it, so everything above the transport can be tested without
// a live SSH server.
//
// The interface is deliberately exec-only: keyup never streams,
// never allocates a PTY, and never copies files. Every remote
// mutation is a short shell command whose output fits in memory.
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}
