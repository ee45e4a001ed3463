package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/keyup/internal/errors"
)

// target is a parsed bootstrap destination before config resolution and
// flag overrides are applied.
type target struct {
	Host string
	User string
	Port int
}

// parseTarget splits a command-line target of the form [user@]host[:port].
// The last '@' separates user from host, matching OpenSSH. Bracketed IPv6
// literals take their port after the bracket; bare IPv6 literals can't
// carry one.
func parseTarget(raw string) (target, error) {
	t := target{}
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return t, errors.New(errors.ErrValidation,
			"Empty bootstrap target",
			"Pass a target like user@host, or a host name from .keyup.yaml.")
	}

	if at := strings.LastIndex(rest, "@"); at != -1 {
		t.User = rest[:at]
		rest = rest[at+1:]
	}

	if rest == "" {
		return t, errors.New(errors.ErrValidation,
			fmt.Sprintf("No host in target '%s'", raw),
			"Pass a target like user@host, or a host name from .keyup.yaml.")
	}

	switch {
	case strings.HasPrefix(rest, "["):
		host, portStr, err := net.SplitHostPort(rest)
		if err != nil {
			return t, errors.WrapWithCode(err, errors.ErrValidation,
				fmt.Sprintf("Can't parse target '%s'", raw),
				"Bracketed addresses need a port: user@[2001:db8::1]:22.")
		}
		port, err := parsePort(portStr)
		if err != nil {
			return t, errors.WrapWithCode(err, errors.ErrValidation,
				fmt.Sprintf("Bad port in target '%s'", raw),
				"Ports are numbers between 1 and 65535.")
		}
		rest = host
		t.Port = port
	case strings.Count(rest, ":") == 1:
		host, portStr, _ := net.SplitHostPort(rest)
		port, err := parsePort(portStr)
		if err != nil {
			return t, errors.WrapWithCode(err, errors.ErrValidation,
				fmt.Sprintf("Bad port in target '%s'", raw),
				"Ports are numbers between 1 and 65535.")
		}
		rest = host
		t.Port = port
	}
	// More than one colon without brackets is a bare IPv6 literal;
	// leave it whole.

	if rest == "" {
		return t, errors.New(errors.ErrValidation,
			fmt.Sprintf("No host in target '%s'", raw),
			"Pass a target like user@host, or a host name from .keyup.yaml.")
	}

	t.Host = rest
	return t, nil
}

// parsePort converts a port string into an int, rejecting anything
// outside 1-65535.
func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// parseConnectTimeout parses a connect timeout string into a duration.
// Returns zero duration if the flag is empty, letting the orchestrator
// fall back to its default.
func parseConnectTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrValidation,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 30s, or 2m.")
	}
	return duration, nil
}
