package bootstrap

import "encoding/json"

// State is a position in the bootstrap machine. States are linear: each
// is entered only after its producing step succeeds, and a failure at
// any point moves to StateFailed with nothing after it executing.
type State int

const (
	StateInit State = iota
	StateKeyReady
	StateConfigMerged
	StateSessionOpen
	StateRemoteDirReady
	StateAuthorizedKeysReady
	StateKeyInstalled
	StatePubkeyAuthEnabled
	StateBackupTaken
	StatePasswordAuthDisabled
	StateServiceRestarted
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateInit:                 "init",
	StateKeyReady:             "key-ready",
	StateConfigMerged:         "config-merged",
	StateSessionOpen:          "session-open",
	StateRemoteDirReady:       "remote-dir-ready",
	StateAuthorizedKeysReady:  "authorized-keys-ready",
	StateKeyInstalled:         "key-installed",
	StatePubkeyAuthEnabled:    "pubkey-auth-enabled",
	StateBackupTaken:          "backup-taken",
	StatePasswordAuthDisabled: "password-auth-disabled",
	StateServiceRestarted:     "service-restarted",
	StateCompleted:            "completed",
	StateFailed:               "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON renders the state name rather than the ordinal.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
