package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/keyup/internal/errors"
)

func TestMachineMode_DefaultValue(t *testing.T) {
	// Reset to default
	oldMode := machineMode
	defer func() { machineMode = oldMode }()

	machineMode = false
	assert.False(t, MachineMode())

	machineMode = true
	assert.True(t, MachineMode())
}

func TestWriteJSONSuccess_BasicData(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}
	err := WriteJSONSuccess(&buf, data)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.NotNil(t, env.Data)

	// Verify data content
	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", dataMap["key"])
}

func TestWriteJSONSuccess_ComplexData(t *testing.T) {
	var buf bytes.Buffer

	data := struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Items []string `json:"items"`
	}{
		Name:  "test",
		Count: 42,
		Items: []string{"a", "b", "c"},
	}

	err := WriteJSONSuccess(&buf, data)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "test", dataMap["name"])
	assert.Equal(t, float64(42), dataMap["count"]) // JSON numbers are float64
}

func TestWriteJSONSuccess_NilData(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONSuccess(&buf, nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Nil(t, env.Error)
}

func TestWriteJSONError_AllFields(t *testing.T) {
	var buf bytes.Buffer

	details := map[string]string{"host": "example.com"}
	err := WriteJSONError(&buf, ErrCodeSSHTimeout, "Connection timed out", "Check network connectivity", details)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)

	assert.Equal(t, ErrCodeSSHTimeout, env.Error.Code)
	assert.Equal(t, "Connection timed out", env.Error.Message)
	assert.Equal(t, "Check network connectivity", env.Error.Suggestion)

	detailsMap, ok := env.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "example.com", detailsMap["host"])
}

func TestWriteJSONError_NoSuggestion(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONError(&buf, ErrCodeUnknown, "Something went wrong", "", nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Empty(t, env.Error.Suggestion)
	assert.Nil(t, env.Error.Details)
}

func TestWriteJSONFromError_NilError(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONFromError(&buf, nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Nil(t, env.Error)
}

func TestWriteJSONFromError_GenericError(t *testing.T) {
	var buf bytes.Buffer

	goErr := fmt.Errorf("something went wrong")
	err := WriteJSONFromError(&buf, goErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Equal(t, "something went wrong", env.Error.Message)
}

func TestWriteJSONFromError_StructuredError(t *testing.T) {
	var buf bytes.Buffer

	kuErr := errors.New(errors.ErrConfig, "Couldn't update .keyup.yaml", "Check file permissions")
	err := WriteJSONFromError(&buf, kuErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeConfigMutation, env.Error.Code)
	assert.Equal(t, "Couldn't update .keyup.yaml", env.Error.Message)
	assert.Equal(t, "Check file permissions", env.Error.Suggestion)
}

func TestWriteJSONFromError_WrappedStructuredError(t *testing.T) {
	var buf bytes.Buffer

	innerErr := errors.New(errors.ErrKeygen, "ssh-keygen failed", "Install openssh-client")
	wrappedErr := fmt.Errorf("key setup: %w", innerErr)
	err := WriteJSONFromError(&buf, wrappedErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeKeygen, env.Error.Code)
}

func TestErrorToJSON_NilReturnsNil(t *testing.T) {
	result := ErrorToJSON(nil)
	assert.Nil(t, result)
}

func TestErrorToJSON_GenericError(t *testing.T) {
	err := fmt.Errorf("generic error message")
	result := ErrorToJSON(err)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeUnknown, result.Code)
	assert.Equal(t, "generic error message", result.Message)
	assert.Empty(t, result.Suggestion)
}

func TestErrorToJSON_AllInternalErrorCodes(t *testing.T) {
	tests := []struct {
		name         string
		internalCode string
		message      string
		wantCode     string
	}{
		{
			name:         "validation",
			internalCode: errors.ErrValidation,
			message:      "Empty bootstrap target",
			wantCode:     ErrCodeValidation,
		},
		{
			name:         "keygen",
			internalCode: errors.ErrKeygen,
			message:      "ssh-keygen exited with status 1",
			wantCode:     ErrCodeKeygen,
		},
		{
			name:         "remote command",
			internalCode: errors.ErrRemote,
			message:      "Couldn't create ~/.ssh on the remote",
			wantCode:     ErrCodeRemoteCommand,
		},
		{
			name:         "config mutation",
			internalCode: errors.ErrConfig,
			message:      "Couldn't write ~/.ssh/config",
			wantCode:     ErrCodeConfigMutation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.New(tt.internalCode, tt.message, "some suggestion")
			result := ErrorToJSON(err)

			require.NotNil(t, result)
			assert.Equal(t, tt.wantCode, result.Code)
			assert.Equal(t, tt.message, result.Message)
		})
	}
}

func TestMapErrorCode_ConnectDisambiguation(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		cause    error
		wantCode string
	}{
		{
			name:     "auth failure in message",
			message:  "ssh: unable to authenticate, attempted methods [none password]",
			wantCode: ErrCodeSSHAuthFailed,
		},
		{
			name:     "no supported methods",
			message:  "ssh: handshake failed: no supported methods remain",
			wantCode: ErrCodeSSHAuthFailed,
		},
		{
			name:     "permission denied in cause",
			message:  "Couldn't connect to 203.0.113.7",
			cause:    fmt.Errorf("ssh: permission denied (publickey,password)"),
			wantCode: ErrCodeSSHAuthFailed,
		},
		{
			name:     "io timeout in cause",
			message:  "Couldn't connect to 203.0.113.7",
			cause:    fmt.Errorf("dial tcp 203.0.113.7:22: i/o timeout"),
			wantCode: ErrCodeSSHTimeout,
		},
		{
			name:     "timed out in message",
			message:  "Connection timed out after 10s",
			wantCode: ErrCodeSSHTimeout,
		},
		{
			name:     "context deadline in cause",
			message:  "Couldn't connect to 203.0.113.7",
			cause:    context.DeadlineExceeded,
			wantCode: ErrCodeSSHTimeout,
		},
		{
			name:     "refused falls back to connection",
			message:  "Couldn't connect to 203.0.113.7",
			cause:    fmt.Errorf("dial tcp 203.0.113.7:22: connection refused"),
			wantCode: ErrCodeSSHConnection,
		},
		{
			name:     "bland message falls back to connection",
			message:  "Couldn't reach the host",
			wantCode: ErrCodeSSHConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *errors.Error
			if tt.cause != nil {
				err = errors.WrapWithCode(tt.cause, errors.ErrConnect, tt.message, "")
			} else {
				err = errors.New(errors.ErrConnect, tt.message, "")
			}

			assert.Equal(t, tt.wantCode, mapErrorCode(err))
		})
	}
}

func TestMapErrorCode_UnknownInternalCode(t *testing.T) {
	err := errors.New("SOMETHING_ELSE", "Some message", "")
	assert.Equal(t, ErrCodeUnknown, mapErrorCode(err))
}

func TestJSONEnvelope_Structure(t *testing.T) {
	// Test that JSON envelope marshals with correct field names
	env := JSONEnvelope{
		Success: true,
		Data:    "test",
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"success":true`)
	assert.Contains(t, string(data), `"data":"test"`)
	assert.NotContains(t, string(data), `"error"`) // omitempty
}

func TestJSONEnvelope_ErrorStructure(t *testing.T) {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       "TEST_CODE",
			Message:    "Test message",
			Suggestion: "Test suggestion",
			Details:    map[string]string{"key": "value"},
		},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"success":false`)
	assert.Contains(t, string(data), `"code":"TEST_CODE"`)
	assert.Contains(t, string(data), `"message":"Test message"`)
	assert.Contains(t, string(data), `"suggestion":"Test suggestion"`)
	assert.NotContains(t, string(data), `"data"`) // omitempty
}

func TestJSONError_OmitsEmptyFields(t *testing.T) {
	jsonErr := JSONError{
		Code:    "TEST",
		Message: "Test",
		// Suggestion and Details empty
	}

	data, err := json.Marshal(jsonErr)
	require.NoError(t, err)

	assert.NotContains(t, string(data), `"suggestion"`)
	assert.NotContains(t, string(data), `"details"`)
}

func TestWriteJSONEnvelope_Formatting(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONSuccess(&buf, map[string]string{"test": "value"})
	require.NoError(t, err)

	output := buf.String()

	// Should be indented with 2 spaces
	assert.Contains(t, output, "\n  ")
	// Should end with newline
	assert.True(t, output[len(output)-1] == '\n')
}

func TestErrorCodes_AreUnique(t *testing.T) {
	codes := []string{
		ErrCodeValidation,
		ErrCodeKeygen,
		ErrCodeSSHAuthFailed,
		ErrCodeSSHTimeout,
		ErrCodeSSHConnection,
		ErrCodeRemoteCommand,
		ErrCodeConfigMutation,
		ErrCodeUnknown,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate error code: %s", code)
		seen[code] = true
	}
}

func TestErrorCodes_Format(t *testing.T) {
	// All error codes should be UPPER_SNAKE_CASE
	codes := []string{
		ErrCodeValidation,
		ErrCodeKeygen,
		ErrCodeSSHAuthFailed,
		ErrCodeSSHTimeout,
		ErrCodeSSHConnection,
		ErrCodeRemoteCommand,
		ErrCodeConfigMutation,
		ErrCodeUnknown,
	}

	for _, code := range codes {
		// Should not contain lowercase letters
		for _, r := range code {
			if r >= 'a' && r <= 'z' {
				t.Errorf("error code %q contains lowercase letter", code)
				break
			}
		}
	}
}
