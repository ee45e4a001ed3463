package testing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

var _ sshutil.SSHClient = (*MockClient)(nil)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// MockClient simulates an SSH connection for testing.
// It parses the shell commands keyup issues during a bootstrap run and
// executes them against a virtual filesystem and a fake systemd, so the
// full flow can be asserted on without a live server.
type MockClient struct {
	mu        sync.Mutex
	host      string
	address   string
	home      string
	fs        *MockFS
	closed    bool
	commands  map[string]CommandResponse // pattern -> response
	units     map[string]bool            // systemd unit files present
	restarted []string                   // units restarted, in order
	history   []string                   // every command passed to Exec
}

// NewMockClient creates a new mock SSH client with an empty filesystem.
// The simulated host runs a systemd with sshd.service present, like a
// stock RHEL box; use SetUnits to simulate Debian (ssh.service).
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		home:     "/root",
		fs:       NewMockFS(),
		commands: make(map[string]CommandResponse),
		units:    map[string]bool{"sshd.service": true},
	}
}

// Exec runs a command against the virtual filesystem.
// Canned responses registered via SetCommandResponse take precedence;
// otherwise the command is parsed. && chains run left to right and stop
// at the first failing segment, like a real shell.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, errors.New("connection closed")
	}

	m.history = append(m.history, cmd)

	// Check for exact command matches first
	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	// Check for pattern matches
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
		}
	}

	var outBuf, errBuf []byte
	for _, segment := range strings.Split(cmd, " && ") {
		out, errOut, code, execErr := m.run(strings.TrimSpace(segment))
		outBuf = append(outBuf, out...)
		errBuf = append(errBuf, errOut...)
		if execErr != nil {
			return outBuf, errBuf, -1, execErr
		}
		if code != 0 {
			return outBuf, errBuf, code, nil
		}
	}
	return outBuf, errBuf, 0, nil
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called, so tests can assert
// session teardown.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern, matched against
// the full command line before any parsing.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// SetHome changes the directory the mock expands ~ to.
func (m *MockClient) SetHome(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.home = path
}

// SetUnits replaces the set of systemd unit files present on the host.
func (m *MockClient) SetUnits(units ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units = make(map[string]bool, len(units))
	for _, u := range units {
		m.units[normalizeUnit(u)] = true
	}
}

// Restarted returns the units restarted so far, in order.
func (m *MockClient) Restarted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.restarted...)
}

// History returns every command passed to Exec, in order.
func (m *MockClient) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// ClearHistory discards the recorded command log.
func (m *MockClient) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// keyBindRe matches the key transfer form keyup uses to move key
// material without interpolating it into the shell:
//
//	k="$(printf '%s' '<base64>' | base64 -d)"; <command using "$k">
var keyBindRe = regexp.MustCompile(`^k="\$\(printf '%s' '([A-Za-z0-9+/=]*)' \| base64 -d\)"; (.+)$`)

// run executes a single command segment.
func (m *MockClient) run(cmd string) ([]byte, []byte, int, error) {
	if match := keyBindRe.FindStringSubmatch(cmd); match != nil {
		decoded, err := base64.StdEncoding.DecodeString(match[1])
		if err != nil {
			return nil, []byte("base64: invalid input\n"), 1, nil
		}
		return m.runWithKey(match[2], string(decoded))
	}

	tokens := splitWords(cmd)
	if len(tokens) == 0 {
		return nil, nil, 0, nil
	}

	switch tokens[0] {
	case "mkdir":
		return m.handleMkdir(tokens[1:])
	case "chmod":
		return m.handleChmod(tokens[1:])
	case "touch":
		return m.handleTouch(tokens[1:])
	case "test":
		return m.handleTest(tokens[1:])
	case "grep":
		return m.handleGrep(tokens[1:])
	case "sed":
		return m.handleSed(tokens[1:])
	case "cp":
		return m.handleCp(tokens[1:])
	case "printf":
		return m.handlePrintf(tokens[1:])
	case "systemctl":
		return m.handleSystemctl(tokens[1:])
	}

	// Unknown command - return success by default
	return nil, nil, 0, nil
}

// runWithKey executes the remainder of a key transfer command with the
// decoded key line bound to $k.
func (m *MockClient) runWithKey(rest, key string) ([]byte, []byte, int, error) {
	tokens := splitWords(rest)
	for i, tok := range tokens {
		if tok == "$k" {
			tokens[i] = key
		}
	}
	if len(tokens) == 0 {
		return nil, nil, 0, nil
	}

	switch tokens[0] {
	case "grep":
		return m.handleGrep(tokens[1:])
	case "printf":
		return m.handlePrintf(tokens[1:])
	}
	return nil, []byte("sh: unsupported key command\n"), 1, nil
}

// handleMkdir processes: mkdir [-p] <path>
func (m *MockClient) handleMkdir(args []string) ([]byte, []byte, int, error) {
	createParents := false
	if len(args) > 0 && args[0] == "-p" {
		createParents = true
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, []byte("mkdir: missing operand\n"), 1, nil
	}
	path := m.cleanPath(args[0])

	if createParents {
		// mkdir -p: create all parent directories, don't fail if exists
		if err := m.fs.MkdirAll(path); err != nil {
			return nil, []byte("mkdir: cannot create directory: " + err.Error() + "\n"), 1, nil
		}
		return nil, nil, 0, nil
	}

	// Regular mkdir: check parent exists first (simulates real mkdir behavior)
	parent := filepath.Dir(path)
	if parent != "" && parent != "/" && parent != "." && !m.fs.IsDir(parent) {
		return nil, []byte(fmt.Sprintf("mkdir: cannot create directory '%s': No such file or directory\n", path)), 1, nil
	}
	if err := m.fs.Mkdir(path); err != nil {
		return nil, []byte("mkdir: cannot create directory: " + err.Error() + "\n"), 1, nil
	}
	return nil, nil, 0, nil
}

// handleChmod processes: chmod <mode> <path>
// Modes aren't tracked; success just proves the target exists.
func (m *MockClient) handleChmod(args []string) ([]byte, []byte, int, error) {
	if len(args) != 2 {
		return nil, []byte("chmod: missing operand\n"), 1, nil
	}
	path := m.cleanPath(args[1])
	if !m.fs.Exists(path) {
		return nil, []byte(fmt.Sprintf("chmod: cannot access '%s': No such file or directory\n", path)), 1, nil
	}
	return nil, nil, 0, nil
}

// handleTouch processes: touch <path>
func (m *MockClient) handleTouch(args []string) ([]byte, []byte, int, error) {
	if len(args) != 1 {
		return nil, []byte("touch: missing file operand\n"), 1, nil
	}
	path := m.cleanPath(args[0])
	if err := m.fs.Touch(path); err != nil {
		return nil, []byte(fmt.Sprintf("touch: cannot touch '%s': %s\n", path, err.Error())), 1, nil
	}
	return nil, nil, 0, nil
}

// handleTest processes: test -f <path> and test -d <path>
func (m *MockClient) handleTest(args []string) ([]byte, []byte, int, error) {
	if len(args) != 2 {
		return nil, nil, 1, nil
	}
	path := m.cleanPath(args[1])
	switch args[0] {
	case "-f":
		if m.fs.IsFile(path) {
			return nil, nil, 0, nil
		}
	case "-d":
		if m.fs.IsDir(path) {
			return nil, nil, 0, nil
		}
	}
	return nil, nil, 1, nil
}

// handleGrep processes the two forms keyup uses:
//
//	grep -qxF -- <line> <path>    exact whole-line match
//	grep -qE <pattern> <path>     regex match
//
// Exit codes follow grep: 0 match, 1 no match, 2 unreadable file.
func (m *MockClient) handleGrep(args []string) ([]byte, []byte, int, error) {
	if len(args) == 0 {
		return nil, []byte("usage: grep [flags] pattern file\n"), 2, nil
	}
	mode := args[0]
	rest := args[1:]
	if len(rest) > 0 && rest[0] == "--" {
		rest = rest[1:]
	}
	if len(rest) < 2 {
		return nil, []byte("usage: grep [flags] pattern file\n"), 2, nil
	}
	needle, path := rest[0], m.cleanPath(rest[1])

	content, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, []byte(fmt.Sprintf("grep: %s: No such file or directory\n", path)), 2, nil
	}
	lines := strings.Split(string(content), "\n")

	switch mode {
	case "-qxF":
		for _, line := range lines {
			if line == needle {
				return nil, nil, 0, nil
			}
		}
		return nil, nil, 1, nil
	case "-qE":
		re, reErr := regexp.Compile(needle)
		if reErr != nil {
			return nil, []byte("grep: invalid pattern\n"), 2, nil
		}
		for _, line := range lines {
			if re.MatchString(line) {
				return nil, nil, 0, nil
			}
		}
		return nil, nil, 1, nil
	}
	return nil, []byte(fmt.Sprintf("grep: unsupported flags %s\n", mode)), 2, nil
}

// handleSed processes: sed -i -E 's|<pattern>|<replacement>|' <path>
// The substitution is applied per line, like sed without a /g flag on
// an anchored pattern.
func (m *MockClient) handleSed(args []string) ([]byte, []byte, int, error) {
	if len(args) != 4 || args[0] != "-i" || args[1] != "-E" {
		return nil, []byte("sed: unsupported invocation\n"), 1, nil
	}
	expr, path := args[2], m.cleanPath(args[3])

	if !strings.HasPrefix(expr, "s|") || !strings.HasSuffix(expr, "|") {
		return nil, []byte("sed: unsupported expression\n"), 1, nil
	}
	body := strings.TrimSuffix(strings.TrimPrefix(expr, "s|"), "|")
	parts := strings.SplitN(body, "|", 2)
	if len(parts) != 2 {
		return nil, []byte("sed: unsupported expression\n"), 1, nil
	}

	re, err := regexp.Compile(parts[0])
	if err != nil {
		return nil, []byte("sed: invalid pattern\n"), 1, nil
	}

	content, readErr := m.fs.ReadFile(path)
	if readErr != nil {
		return nil, []byte(fmt.Sprintf("sed: can't read %s: No such file or directory\n", path)), 2, nil
	}

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		lines[i] = re.ReplaceAllString(line, parts[1])
	}
	_ = m.fs.WriteFile(path, []byte(strings.Join(lines, "\n")))
	return nil, nil, 0, nil
}

// handleCp processes: cp <src> <dst>
// An existing destination is overwritten, like cp.
func (m *MockClient) handleCp(args []string) ([]byte, []byte, int, error) {
	if len(args) != 2 {
		return nil, []byte("cp: missing file operand\n"), 1, nil
	}
	src, dst := m.cleanPath(args[0]), m.cleanPath(args[1])

	content, err := m.fs.ReadFile(src)
	if err != nil {
		return nil, []byte(fmt.Sprintf("cp: cannot stat '%s': No such file or directory\n", src)), 1, nil
	}
	_ = m.fs.WriteFile(dst, content)
	return nil, nil, 0, nil
}

// handlePrintf processes: printf '%s\n' <text> >> <path>
func (m *MockClient) handlePrintf(args []string) ([]byte, []byte, int, error) {
	if len(args) == 4 && args[0] == `%s\n` && args[2] == ">>" {
		path := m.cleanPath(args[3])
		if err := m.fs.AppendFile(path, []byte(args[1]+"\n")); err != nil {
			return nil, []byte("printf: " + err.Error() + "\n"), 1, nil
		}
		return nil, nil, 0, nil
	}
	return nil, []byte("printf: unsupported invocation\n"), 1, nil
}

// handleSystemctl processes: systemctl list-unit-files <unit>... and
// systemctl restart <unit>
func (m *MockClient) handleSystemctl(args []string) ([]byte, []byte, int, error) {
	if len(args) == 0 {
		return nil, []byte("systemctl: missing command\n"), 1, nil
	}

	switch args[0] {
	case "list-unit-files":
		var out strings.Builder
		for _, arg := range args[1:] {
			if strings.HasPrefix(arg, "--") {
				continue
			}
			unit := normalizeUnit(arg)
			if m.units[unit] {
				out.WriteString(unit + " enabled enabled\n")
			}
		}
		if out.Len() == 0 {
			// systemctl exits non-zero when no unit files match
			return nil, nil, 1, nil
		}
		return []byte(out.String()), nil, 0, nil
	case "restart":
		if len(args) < 2 {
			return nil, []byte("systemctl: missing unit\n"), 1, nil
		}
		unit := normalizeUnit(args[1])
		if !m.units[unit] {
			return nil, []byte(fmt.Sprintf("Failed to restart %s: Unit %s not found.\n", unit, unit)), 5, nil
		}
		m.restarted = append(m.restarted, unit)
		return nil, nil, 0, nil
	}
	return nil, nil, 0, nil
}

func normalizeUnit(name string) string {
	if strings.HasSuffix(name, ".service") {
		return name
	}
	return name + ".service"
}

// cleanPath expands a leading tilde against the mock home directory.
func (m *MockClient) cleanPath(path string) string {
	if path == "~" {
		return m.home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(m.home, path[2:])
	}
	return path
}

// splitWords splits a shell command into tokens, stripping one level of
// single or double quotes. It covers the quoting keyup emits; it is not
// a general shell parser.
func splitWords(s string) []string {
	var (
		tokens  []string
		current strings.Builder
		inWord  bool
		quote   rune
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				tokens = append(tokens, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		tokens = append(tokens, current.String())
	}
	return tokens
}
