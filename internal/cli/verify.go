package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/ui"
	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

// VerifyOptions holds options for the verify command.
type VerifyOptions struct {
	Alias   string // Host block identifier in ~/.ssh/config
	Timeout string // connect timeout as a duration string
}

// verifyData is the JSON payload for a successful verify.
type verifyData struct {
	Alias     string `json:"alias"`
	Address   string `json:"address"`
	Identity  string `json:"identity,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Verify proves that passwordless login works for a bootstrapped host:
// resolve the merged Host block, authenticate with the generated identity,
// and run a command over the session. A handshake alone isn't enough;
// sshd can accept the key and still refuse exec.
func Verify(opts VerifyOptions) error {
	timeout, err := parseConnectTimeout(opts.Timeout)
	if err != nil {
		return err
	}

	entry, err := sshutil.ResolveAlias(opts.Alias)
	if err != nil {
		return err
	}

	var spinner *ui.Spinner
	if !quiet && !machineMode {
		spinner = ui.NewSpinner("Connecting as " + opts.Alias)
		spinner.Start()
	}

	start := time.Now()
	client, err := sshutil.DialAlias(context.Background(), opts.Alias, timeout)
	if err != nil {
		if spinner != nil {
			spinner.Fail()
		}
		return err
	}
	defer client.Close()

	stdout, stderr, code, err := client.Exec("printf '%s' keyup-verified")
	latency := time.Since(start)

	switch {
	case err != nil:
		if spinner != nil {
			spinner.Fail()
		}
		return errors.WrapWithCode(err, errors.ErrRemote,
			fmt.Sprintf("Connected to '%s' but couldn't run a command", opts.Alias),
			"The server may restrict this account to specific commands.")
	case code != 0 || !strings.Contains(string(stdout), "keyup-verified"):
		if spinner != nil {
			spinner.Fail()
		}
		suggestion := "The server may restrict this account to specific commands."
		if s := strings.TrimSpace(string(stderr)); s != "" {
			suggestion = "Remote said: " + s
		}
		return errors.New(errors.ErrRemote,
			fmt.Sprintf("Connected to '%s' but the probe command failed (exit %d)", opts.Alias, code),
			suggestion)
	}

	if spinner != nil {
		spinner.Success()
	}

	if machineMode {
		return WriteJSONSuccess(os.Stdout, verifyData{
			Alias:     opts.Alias,
			Address:   client.GetAddress(),
			Identity:  entry.IdentityFile,
			LatencyMS: latency.Milliseconds(),
		})
	}

	if !quiet {
		fmt.Printf("%s Key login to '%s' works (%dms)\n",
			ui.SuccessStyle().Render(ui.SymbolSuccess), opts.Alias, latency.Milliseconds())
		if entry.IdentityFile != "" {
			fmt.Printf("  %s\n", ui.MutedStyle().Render("identity: "+entry.IdentityFile))
		}
	}
	return nil
}

// verifyCommand is the implementation called by the cobra command.
func verifyCommand(alias string) error {
	return Verify(VerifyOptions{
		Alias:   alias,
		Timeout: verifyTimeoutFlag,
	})
}
