// Package bootstrap drives a host from password-only SSH to key-based
// login: generate a local key pair, register the host in ~/.ssh/config,
// install the public key remotely, enable pubkey auth, and optionally
// turn password auth off and restart the daemon.
//
// The flow is a linear state machine with no retries. Every step is
// idempotent, so the recovery story for any failure is simply rerunning
// the whole thing: completed work is detected and skipped, not redone.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/keys"
	"github.com/rileyhilliard/keyup/internal/logger"
	"github.com/rileyhilliard/keyup/internal/remote"
	"github.com/rileyhilliard/keyup/internal/sshcfg"
	"github.com/rileyhilliard/keyup/pkg/sshutil"
)

const (
	// DefaultPort is used when the request carries no port or an
	// out-of-range one.
	DefaultPort = 22

	// DefaultTimeout bounds the initial TCP dial and SSH handshake.
	DefaultTimeout = 10 * time.Second
)

// Request describes one host to bootstrap.
type Request struct {
	// Host is the network address to connect to.
	Host string

	// User is the login name on the remote.
	User string

	// Password authenticates the first (and ideally last)
	// password-based connection.
	Password string

	// Port is the SSH port. Zero or out-of-range falls back to 22.
	Port int

	// Alias names the key pair and the ~/.ssh/config block. Empty
	// falls back to Host.
	Alias string

	// DisablePasswordAuth turns password logins off after the key is
	// installed and verified present.
	DisablePasswordAuth bool

	// Timeout bounds the connection attempt. Zero means DefaultTimeout.
	Timeout time.Duration
}

// StepResult records one completed step.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Outcome is the result of one bootstrap run.
type Outcome struct {
	Host           string        `json:"host"`
	Alias          string        `json:"alias"`
	KeyPath        string        `json:"key_path,omitempty"`
	KeyCreated     bool          `json:"key_created"`
	ConfigAppended bool          `json:"config_appended"`
	KeyInstalled   bool          `json:"key_installed"`
	RestartedUnit  string        `json:"restarted_unit,omitempty"`
	Steps          []StepResult  `json:"steps"`
	FinalState     State         `json:"final_state"`
	Duration       time.Duration `json:"duration"`
	Err            error         `json:"-"`
}

// Completed reports whether the run reached the terminal success state.
// Anything else maps to a non-zero process exit.
func (o *Outcome) Completed() bool {
	return o.FinalState == StateCompleted
}

// CompletedSteps returns the ordered identifiers of the steps that ran
// to success.
func (o *Outcome) CompletedSteps() []string {
	names := make([]string, len(o.Steps))
	for i, s := range o.Steps {
		names[i] = s.Name
	}
	return names
}

// Event reports step progress. Each step emits one Event as it starts
// (Done false, State holding the state the step drives toward) and one
// as it resolves (Done true, Err set on failure).
type Event struct {
	Step     string
	State    State
	Done     bool
	Err      error
	Duration time.Duration
}

// EventHandler consumes progress events. Handlers run on the
// orchestrator's goroutine and should return quickly.
type EventHandler func(Event)

// KeyEnsurer yields the local key pair for an alias, creating it on
// first use.
type KeyEnsurer interface {
	EnsureKeyPair(hostID string) (keys.Pair, bool, error)
}

// HostUpserter registers a host block in the local SSH config.
type HostUpserter interface {
	UpsertHost(e sshcfg.Entry) (bool, error)
}

// Mutator is the remote-side surface the orchestrator drives once a
// session is open.
type Mutator interface {
	EnsureSSHDir() error
	EnsureAuthorizedKeys() error
	InstallKey(publicKey string) (bool, error)
	EnablePubkeyAuth() error
	BackupConfig() error
	DisablePasswordAuth() error
	RestartService() (string, error)
}

var _ Mutator = (*remote.Mutator)(nil)

// Dialer opens the SSH transport for a normalized request.
type Dialer func(ctx context.Context, req Request) (sshutil.SSHClient, error)

// Orchestrator runs the bootstrap machine. Collaborators are injected
// so the full flow is testable against the mock transport.
type Orchestrator struct {
	// OnEvent, when set, receives progress events for display.
	OnEvent EventHandler

	keys       KeyEnsurer
	config     HostUpserter
	dial       Dialer
	newMutator func(sshutil.SSHClient) Mutator
	log        logger.Logger
}

// New wires an orchestrator from its collaborators. A nil dial uses
// password authentication through sshutil.
func New(keyMgr KeyEnsurer, cfgMerger HostUpserter, dial Dialer, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Noop()
	}
	if dial == nil {
		dial = passwordDialer
	}
	o := &Orchestrator{
		keys:   keyMgr,
		config: cfgMerger,
		dial:   dial,
		log:    log,
	}
	o.newMutator = func(client sshutil.SSHClient) Mutator {
		return remote.NewMutator(client, log)
	}
	return o
}

func passwordDialer(ctx context.Context, req Request) (sshutil.SSHClient, error) {
	client, err := sshutil.DialPassword(ctx, sshutil.DialOptions{
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Timeout:  req.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// step is one transition of the machine: run drives the host toward
// state, and code classifies errors that arrive without one.
type step struct {
	name  string
	state State
	code  string
	run   func() error
}

// Run executes the machine for one host. It never returns an error
// directly: failures land in the Outcome with FinalState StateFailed,
// the failing step recorded, and the session (if open) torn down.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	started := time.Now()
	outcome := Outcome{Host: strings.TrimSpace(req.Host), FinalState: StateInit}

	req, err := o.normalize(req)
	if err != nil {
		outcome.Err = err
		outcome.FinalState = StateFailed
		o.emit(Event{Step: "validate-request", State: StateFailed, Done: true, Err: err})
		outcome.Duration = time.Since(started)
		return outcome
	}
	outcome.Host = req.Host
	outcome.Alias = req.Alias

	var pair keys.Pair
	local := []step{
		{
			name:  "generate-key",
			state: StateKeyReady,
			code:  errors.ErrKeygen,
			run: func() error {
				p, created, err := o.keys.EnsureKeyPair(req.Alias)
				if err != nil {
					return err
				}
				pair = p
				outcome.KeyPath = p.PrivateKeyPath
				outcome.KeyCreated = created
				return nil
			},
		},
		{
			name:  "merge-config",
			state: StateConfigMerged,
			code:  errors.ErrConfig,
			run: func() error {
				added, err := o.config.UpsertHost(sshcfg.Entry{
					HostID:       req.Alias,
					HostName:     req.Host,
					User:         req.User,
					Port:         req.Port,
					IdentityFile: pair.PrivateKeyPath,
				})
				if err != nil {
					return err
				}
				outcome.ConfigAppended = added
				return nil
			},
		},
	}
	for _, s := range local {
		if !o.runStep(ctx, s, &outcome) {
			outcome.Duration = time.Since(started)
			return outcome
		}
	}

	o.remotePhase(ctx, req, pair, &outcome)
	if outcome.FinalState != StateFailed {
		outcome.FinalState = StateCompleted
		o.log.Info("bootstrap of %s completed", req.Alias)
	}
	outcome.Duration = time.Since(started)
	return outcome
}

// remotePhase opens the session and drives every remote step through
// it. The session is closed on every exit path.
func (o *Orchestrator) remotePhase(ctx context.Context, req Request, pair keys.Pair, outcome *Outcome) {
	var client sshutil.SSHClient
	open := step{
		name:  "open-session",
		state: StateSessionOpen,
		code:  errors.ErrConnect,
		run: func() error {
			c, err := o.dial(ctx, req)
			if err != nil {
				return err
			}
			client = c
			return nil
		},
	}
	if !o.runStep(ctx, open, outcome) {
		return
	}
	defer func() {
		if err := client.Close(); err != nil {
			o.log.Debug("closing session to %s: %v", req.Host, err)
		}
	}()

	mut := o.newMutator(client)
	remoteSteps := []step{
		{name: "ensure-ssh-dir", state: StateRemoteDirReady, code: errors.ErrRemote, run: mut.EnsureSSHDir},
		{name: "ensure-authorized-keys", state: StateAuthorizedKeysReady, code: errors.ErrRemote, run: mut.EnsureAuthorizedKeys},
		{
			name:  "install-key",
			state: StateKeyInstalled,
			code:  errors.ErrRemote,
			run: func() error {
				added, err := mut.InstallKey(pair.PublicKey)
				if err != nil {
					return err
				}
				outcome.KeyInstalled = added
				return nil
			},
		},
		{name: "enable-pubkey-auth", state: StatePubkeyAuthEnabled, code: errors.ErrRemote, run: mut.EnablePubkeyAuth},
	}
	if req.DisablePasswordAuth {
		remoteSteps = append(remoteSteps,
			step{name: "backup-sshd-config", state: StateBackupTaken, code: errors.ErrRemote, run: mut.BackupConfig},
			step{name: "disable-password-auth", state: StatePasswordAuthDisabled, code: errors.ErrRemote, run: mut.DisablePasswordAuth},
			step{
				name:  "restart-service",
				state: StateServiceRestarted,
				code:  errors.ErrRemote,
				run: func() error {
					unit, err := mut.RestartService()
					if err != nil {
						return err
					}
					outcome.RestartedUnit = unit
					return nil
				},
			},
		)
	}
	for _, s := range remoteSteps {
		if !o.runStep(ctx, s, outcome) {
			return
		}
	}
}

// runStep executes one step and reports whether the machine may
// continue. Cancellation is observed before the step starts; a step
// already running always finishes.
func (o *Orchestrator) runStep(ctx context.Context, s step, outcome *Outcome) bool {
	if err := ctx.Err(); err != nil {
		o.log.Warn("bootstrap of %s canceled before %s", outcome.Alias, s.name)
		outcome.Err = err
		outcome.FinalState = StateFailed
		o.emit(Event{Step: s.name, State: StateFailed, Done: true, Err: err})
		return false
	}

	o.emit(Event{Step: s.name, State: s.state})
	began := time.Now()
	err := s.run()
	elapsed := time.Since(began)

	if err != nil {
		if errors.CodeOf(err) == "" {
			err = errors.WrapWithCode(err, s.code,
				"Step "+s.name+" failed",
				"Rerun with KEYUP_DEBUG=1 for the full transcript.")
		}
		o.log.Error("step %s failed after %s: %v", s.name, elapsed.Round(time.Millisecond), err)
		outcome.Err = err
		outcome.FinalState = StateFailed
		o.emit(Event{Step: s.name, State: StateFailed, Done: true, Err: err, Duration: elapsed})
		return false
	}

	o.log.Debug("step %s done in %s", s.name, elapsed.Round(time.Millisecond))
	outcome.FinalState = s.state
	outcome.Steps = append(outcome.Steps, StepResult{Name: s.name, Duration: elapsed})
	o.emit(Event{Step: s.name, State: s.state, Done: true, Duration: elapsed})
	return true
}

// normalize applies defaults and validates what cannot be defaulted.
func (o *Orchestrator) normalize(req Request) (Request, error) {
	req.Host = strings.TrimSpace(req.Host)
	req.User = strings.TrimSpace(req.User)
	req.Alias = strings.TrimSpace(req.Alias)

	if req.Host == "" {
		return req, errors.New(errors.ErrValidation,
			"No host to bootstrap",
			"Pass a target like user@host, or a host from .keyup.yaml.")
	}
	if req.User == "" {
		return req, errors.New(errors.ErrValidation,
			"No user to log in as",
			"Use the user@host form or pass --user.")
	}
	if req.Password == "" {
		return req, errors.New(errors.ErrValidation,
			"No password for the first connection",
			"Pass --password or let keyup prompt for one.")
	}

	if req.Port == 0 {
		req.Port = DefaultPort
	} else if req.Port < 1 || req.Port > 65535 {
		o.log.Warn("port %d is out of range, falling back to %d", req.Port, DefaultPort)
		req.Port = DefaultPort
	}
	if req.Alias == "" {
		req.Alias = req.Host
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}
	return req, nil
}

func (o *Orchestrator) emit(e Event) {
	if o.OnEvent != nil {
		o.OnEvent(e)
	}
}
