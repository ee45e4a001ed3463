package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/rileyhilliard/keyup/internal/bootstrap"
	"github.com/rileyhilliard/keyup/internal/config"
	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/keys"
	"github.com/rileyhilliard/keyup/internal/logger"
	"github.com/rileyhilliard/keyup/internal/sshcfg"
	"github.com/rileyhilliard/keyup/internal/ui"
)

// BootstrapOptions holds options for the bootstrap command.
type BootstrapOptions struct {
	Targets  []string // configured names, hosts, or user@host[:port]
	User     string   // login user for targets that don't carry one
	Password string   // password for the first connection; prompted when empty
	Port     int      // SSH port override
	Alias    string   // Host block identifier (single target only)
	Disable  bool     // disable password logins after key install
	Yes      bool     // skip confirmation prompts
	Timeout  string   // connect timeout as a duration string
	Save     bool     // record ad-hoc targets in .keyup.yaml after success
}

// bootstrapPlan pairs a resolved request with where it came from.
// Name is the configured host name, or "" for ad-hoc targets.
type bootstrapPlan struct {
	req  bootstrap.Request
	name string
}

// bootstrapHostResult is the per-host JSON payload under --json.
type bootstrapHostResult struct {
	bootstrap.Outcome
	Error *JSONError `json:"error,omitempty"`
}

// Bootstrap runs the full key-install flow against every target in order.
// Targets are independent: one failing host doesn't stop the others, only
// a Ctrl+C does.
func Bootstrap(opts BootstrapOptions) error {
	cfg, err := config.LoadOrDefault(Config())
	if err != nil {
		return err
	}

	timeout, err := parseConnectTimeout(opts.Timeout)
	if err != nil {
		return err
	}

	if opts.Alias != "" && len(opts.Targets) > 1 {
		return errors.New(errors.ErrValidation,
			"--alias only works with a single target",
			"Bootstrap the hosts one at a time to give each its own alias.")
	}

	plans, err := resolveTargets(cfg, opts, timeout)
	if err != nil {
		return err
	}

	// Ctrl+C cancels between steps; the orchestrator finishes the step
	// in flight and tears the session down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	orch := newOrchestrator(cfg)
	display := ui.NewPhaseDisplay(os.Stdout)

	if len(plans) > 1 && !quiet && !machineMode {
		ui.PrintHeader(ui.HeaderInfo{
			Version: formatVersion(GetVersion()),
			Tagline: fmt.Sprintf("Bootstrapping %d hosts", len(plans)),
		})
	}

	outcomes := make([]bootstrap.Outcome, 0, len(plans))
	for i := range plans {
		plan := &plans[i]

		if i > 0 && !quiet && !machineMode {
			display.Divider()
		}

		if plan.req.Password == "" {
			password, err := askPassword(targetLabel(plan.req))
			if err != nil {
				return err
			}
			plan.req.Password = password
		}

		if plan.req.DisablePasswordAuth && !opts.Yes && !machineMode && interactiveTerminal() {
			confirmed, err := confirmDisable(plan.req.Host)
			if err != nil {
				return err
			}
			if !confirmed {
				if !quiet {
					display.RenderSkipped("Disabling password logins on "+plan.req.Host, "declined")
				}
				plan.req.DisablePasswordAuth = false
			}
		}

		outcome := runBootstrap(ctx, orch, display, plan.req)
		outcomes = append(outcomes, outcome)

		reportOutcome(outcome, len(plans) == 1)

		if outcome.Completed() && opts.Save && plan.name == "" {
			saveHost(plan.req, outcome)
		}

		if ctx.Err() != nil {
			break
		}
	}

	return finishBootstrap(outcomes)
}

// resolveTargets turns raw CLI targets into bootstrap requests. Configured
// names win over literal parsing; explicit flags beat both.
func resolveTargets(cfg *config.Config, opts BootstrapOptions, timeout time.Duration) ([]bootstrapPlan, error) {
	if timeout == 0 {
		timeout = cfg.Defaults.ConnectTimeout
	}

	plans := make([]bootstrapPlan, 0, len(opts.Targets))
	for _, raw := range opts.Targets {
		plan := bootstrapPlan{
			req: bootstrap.Request{
				Password: opts.Password,
				Timeout:  timeout,
			},
		}

		if host, ok := cfg.Resolve(raw); ok {
			plan.name = raw
			plan.req.Host = host.Address
			plan.req.User = host.User
			plan.req.Port = host.Port
			plan.req.Alias = host.Alias
			plan.req.DisablePasswordAuth = host.DisablePasswordAuth || opts.Disable
		} else {
			t, err := parseTarget(raw)
			if err != nil {
				return nil, err
			}
			plan.req.Host = t.Host
			plan.req.User = t.User
			plan.req.Port = t.Port
			plan.req.DisablePasswordAuth = cfg.Defaults.DisablePasswordAuth || opts.Disable
			if plan.req.User == "" {
				plan.req.User = cfg.Defaults.User
			}
			if plan.req.Port == 0 {
				plan.req.Port = cfg.Defaults.Port
			}
		}

		if opts.User != "" {
			plan.req.User = opts.User
		}
		if opts.Port != 0 {
			plan.req.Port = opts.Port
		}
		if opts.Alias != "" {
			plan.req.Alias = opts.Alias
		}

		plans = append(plans, plan)
	}
	return plans, nil
}

// newOrchestrator builds the production orchestrator: real key manager,
// real config merger, password dialer.
func newOrchestrator(cfg *config.Config) *bootstrap.Orchestrator {
	log := logger.Default()
	return bootstrap.New(
		keys.NewManager(cfg.Defaults.KeyDir, log),
		sshcfg.NewMerger("", log),
		nil,
		log,
	)
}

// runBootstrap executes one request with step progress wired to the
// terminal unless output is suppressed.
func runBootstrap(ctx context.Context, orch *bootstrap.Orchestrator, display *ui.PhaseDisplay, req bootstrap.Request) bootstrap.Outcome {
	if quiet || machineMode {
		orch.OnEvent = nil
		return orch.Run(ctx, req)
	}

	fmt.Printf("\nBootstrapping %s\n\n", targetLabel(req))

	orch.OnEvent = func(ev bootstrap.Event) {
		label := labelFor(ev.Step)
		switch {
		case !ev.Done:
			display.RenderProgress(label.progress)
		case ev.Err != nil:
			display.RenderFailed(label.progress, ev.Duration)
		default:
			display.RenderSuccess(label.done, ev.Duration)
		}
	}
	defer func() { orch.OnEvent = nil }()

	return orch.Run(ctx, req)
}

// reportOutcome prints the human-readable result for one target.
func reportOutcome(outcome bootstrap.Outcome, single bool) {
	if machineMode {
		return
	}

	if !outcome.Completed() {
		if outcome.Err != nil {
			fmt.Fprintf(os.Stderr, "\n%s\n", outcome.Err.Error())
		}
		return
	}

	if quiet {
		return
	}

	fmt.Println()
	fmt.Printf("%s %s is ready for key logins\n",
		ui.SuccessStyle().Render(ui.SymbolSuccess), outcome.Alias)

	if single {
		fmt.Println()
		fmt.Println("You can now:")
		fmt.Printf("  ssh %s\n", outcome.Alias)
		fmt.Printf("  keyup verify %s\n", outcome.Alias)
	}
}

// finishBootstrap renders the aggregate result and maps failures to a
// non-zero exit.
func finishBootstrap(outcomes []bootstrap.Outcome) error {
	failed := 0
	for _, o := range outcomes {
		if !o.Completed() {
			failed++
		}
	}

	if machineMode {
		hosts := make([]bootstrapHostResult, 0, len(outcomes))
		var firstErr *JSONError
		for _, o := range outcomes {
			r := bootstrapHostResult{Outcome: o}
			if o.Err != nil {
				r.Error = ErrorToJSON(o.Err)
				if firstErr == nil {
					firstErr = r.Error
				}
			}
			hosts = append(hosts, r)
		}

		env := JSONEnvelope{
			Success: failed == 0,
			Data:    map[string]interface{}{"hosts": hosts},
			Error:   firstErr,
		}
		if err := writeJSONEnvelope(os.Stdout, env); err != nil {
			return err
		}
	} else if len(outcomes) > 1 && !quiet {
		fmt.Println()
		fmt.Print(ui.RenderBootstrapSummary(summaryResults(outcomes)))
	}

	if failed > 0 {
		// Failures are already on the terminal (or in the envelope);
		// only the exit code is left to deliver.
		return errors.NewExitError(1)
	}
	return nil
}

// summaryResults converts outcomes for the UI summary renderer.
func summaryResults(outcomes []bootstrap.Outcome) []ui.BootstrapResult {
	results := make([]ui.BootstrapResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, ui.BootstrapResult{
			Host:      o.Host,
			Alias:     o.Alias,
			Completed: o.Completed(),
			Duration:  o.Duration,
			Err:       o.Err,
		})
	}
	return results
}

// saveHost records a successful ad-hoc target in .keyup.yaml so the next
// run can use the short name. Best-effort: a failed write warns, the
// bootstrap itself already succeeded.
func saveHost(req bootstrap.Request, outcome bootstrap.Outcome) {
	path := Config()
	if path == "" {
		if found, err := config.Find(""); err == nil && found != "" {
			path = found
		} else {
			path = config.ConfigFileName
		}
	}

	host := config.Host{
		Address:             req.Host,
		User:                req.User,
		Port:                req.Port,
		DisablePasswordAuth: req.DisablePasswordAuth,
	}
	if outcome.Alias != req.Host {
		host.Alias = outcome.Alias
	}

	if err := config.AddHost(path, outcome.Alias, host); err != nil {
		logger.Default().Warn("couldn't save %s to %s: %v", outcome.Alias, path, err)
		return
	}
	if !quiet && !machineMode {
		fmt.Printf("%s Saved %s to %s\n",
			ui.SuccessStyle().Render(ui.SymbolSuccess), outcome.Alias, path)
	}
}

// askPassword reads the connection password. A full terminal gets the huh
// form, a piped-stdout terminal gets a plain stderr prompt with echo off,
// and anything non-interactive fails fast instead of hanging a pipeline.
func askPassword(label string) (string, error) {
	if machineMode {
		return "", errors.New(errors.ErrValidation,
			fmt.Sprintf("No password for %s", label),
			"Pass --password when running with --json.")
	}

	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))

	switch {
	case stdinTTY && stdoutTTY:
		var password string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(fmt.Sprintf("Password for %s", label)).
					Description("Used once for the first connection; later logins use the key.").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			),
		)
		if err := form.Run(); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrValidation,
				"Couldn't read the password",
				"Pass --password to skip the prompt.")
		}
		return password, nil

	case stdinTTY:
		fmt.Fprintf(os.Stderr, "Password for %s: ", label)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.WrapWithCode(err, errors.ErrValidation,
				"Couldn't read the password",
				"Pass --password to skip the prompt.")
		}
		return strings.TrimSpace(string(raw)), nil

	default:
		return "", errors.New(errors.ErrValidation,
			fmt.Sprintf("No password for %s", label),
			"Pass --password when running non-interactively.")
	}
}

// confirmDisable asks before locking a host to key-only logins. Declining
// keeps the bootstrap but skips the disable tail.
func confirmDisable(host string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Disable password logins on %s?", host)).
				Description("Only holders of the installed key will be able to log in.").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrValidation,
			"Couldn't read the confirmation",
			"Pass --yes to skip the prompt.")
	}
	return confirmed, nil
}

// interactiveTerminal reports whether both ends of the terminal are TTYs.
func interactiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// targetLabel formats a request for prompts and progress headers.
func targetLabel(req bootstrap.Request) string {
	if req.User != "" {
		return req.User + "@" + req.Host
	}
	return req.Host
}

// stepLabel holds the in-progress and completed phrasings for one step.
type stepLabel struct {
	progress string
	done     string
}

// stepLabels maps orchestrator step names to terminal phrasing.
var stepLabels = map[string]stepLabel{
	"validate-request":       {"Checking the request", "Request checked"},
	"generate-key":           {"Preparing the key pair", "Key pair ready"},
	"merge-config":           {"Merging ~/.ssh/config", "~/.ssh/config merged"},
	"open-session":           {"Connecting", "Connected"},
	"ensure-ssh-dir":         {"Creating the remote ~/.ssh", "Remote ~/.ssh in place"},
	"ensure-authorized-keys": {"Creating authorized_keys", "authorized_keys in place"},
	"install-key":            {"Installing the public key", "Public key installed"},
	"enable-pubkey-auth":     {"Enabling PubkeyAuthentication", "PubkeyAuthentication on"},
	"backup-sshd-config":     {"Backing up sshd_config", "sshd_config backed up"},
	"disable-password-auth":  {"Disabling PasswordAuthentication", "PasswordAuthentication off"},
	"restart-service":        {"Restarting the SSH service", "SSH service restarted"},
}

func labelFor(step string) stepLabel {
	if label, ok := stepLabels[step]; ok {
		return label
	}
	return stepLabel{progress: step, done: step}
}

// bootstrapCommand is the implementation called by the cobra command.
func bootstrapCommand(targets []string) error {
	return Bootstrap(BootstrapOptions{
		Targets:  targets,
		User:     bootstrapUserFlag,
		Password: bootstrapPasswordFlag,
		Port:     bootstrapPortFlag,
		Alias:    bootstrapAliasFlag,
		Disable:  bootstrapDisableFlag,
		Yes:      bootstrapYesFlag,
		Timeout:  bootstrapTimeoutFlag,
		Save:     bootstrapSaveFlag,
	})
}
