package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/keyup/internal/errors"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
// These map to specific actions an operator or automation can take.
const (
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeKeygen         = "KEYGEN_FAILED"
	ErrCodeSSHAuthFailed  = "SSH_AUTH_FAILED"
	ErrCodeSSHTimeout     = "SSH_TIMEOUT"
	ErrCodeSSHConnection  = "SSH_CONNECTION_FAILED"
	ErrCodeRemoteCommand  = "REMOTE_COMMAND_FAILED"
	ErrCodeConfigMutation = "CONFIG_MUTATION_FAILED"
	ErrCodeUnknown        = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	env := JSONEnvelope{
		Success: true,
		Data:    data,
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	env := JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	}
	return writeJSONEnvelope(w, env)
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	// Structured errors carry their own code, message, and suggestion,
	// even when something wrapped them on the way up.
	var keyupErr *errors.Error
	if stderrors.As(err, &keyupErr) {
		return &JSONError{
			Code:       mapErrorCode(keyupErr),
			Message:    keyupErr.Message,
			Suggestion: keyupErr.Suggestion,
		}
	}

	// Generic error
	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(e *errors.Error) string {
	switch e.Code {
	case errors.ErrValidation:
		return ErrCodeValidation
	case errors.ErrKeygen:
		return ErrCodeKeygen
	case errors.ErrConnect:
		// Distinguish auth rejections and timeouts from plain
		// reachability failures so automation can react differently
		// (a wrong password should not be retried; a timeout can be).
		text := strings.ToLower(e.Message)
		if e.Cause != nil {
			text += " " + strings.ToLower(e.Cause.Error())
		}
		switch {
		case strings.Contains(text, "unable to authenticate"),
			strings.Contains(text, "no supported methods"),
			strings.Contains(text, "permission denied"):
			return ErrCodeSSHAuthFailed
		case strings.Contains(text, "timeout"),
			strings.Contains(text, "timed out"),
			strings.Contains(text, "deadline exceeded"):
			return ErrCodeSSHTimeout
		default:
			return ErrCodeSSHConnection
		}
	case errors.ErrRemote:
		return ErrCodeRemoteCommand
	case errors.ErrConfig:
		return ErrCodeConfigMutation
	}

	return ErrCodeUnknown
}
