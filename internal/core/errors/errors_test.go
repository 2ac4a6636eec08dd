package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without cause",
			err:      New(CodeNotFound, "account not found"),
			expected: "[NOT_FOUND] account not found",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("db error"), CodeStorageError, "failed to query"),
			expected: "[STORAGE_ERROR] failed to query: db error",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeInvalidParam, "invalid port: %d", 99999),
			expected: "[INVALID_PARAM] invalid port: 99999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeNotFound, "user not found")
	err2 := New(CodeNotFound, "client not found")
	err3 := New(CodeConflict, "conflict")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
	assert.True(t, errors.Is(err1, ErrNotFound))
}

func TestDomainErrors_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"execution", &ExecutionError{Backend: "remote", Op: "run", Target: "docker restart xray", ExitCode: 1}, CodeExecutionFailed},
		{"corrupt", &ConfigCorruptError{Path: "/etc/xray/config.json"}, CodeConfigCorrupt},
		{"restart", &RestartError{Command: "docker restart xray", Cause: errors.New("boom")}, CodeRestartFailed},
		{"link", &IncompleteLinkParamsError{Missing: []string{"pbk", "sid"}}, CodeIncompleteLinkParams},
		{"plan", &UnknownPlanError{Plan: "lifetime"}, CodeUnknownPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.code, GetCode(wrapped))
			assert.True(t, IsCode(wrapped, tt.code))
			assert.True(t, errors.Is(wrapped, New(tt.code, "")))
		})
	}
}

func TestExecutionError_Message(t *testing.T) {
	err := &ExecutionError{
		Backend:  "remote",
		Op:       "run",
		Target:   "docker restart ghostline_xray",
		ExitCode: 125,
		Stderr:   "no such container\n",
	}
	assert.Equal(t, "[EXECUTION_FAILED] run docker restart ghostline_xray on remote backend exited with 125 (stderr: no such container)", err.Error())

	timeout := &ExecutionError{Backend: "local", Op: "read", Target: "/var/log/xray/access.log", ExitCode: -1, Cause: context.DeadlineExceeded}
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
	assert.NotContains(t, timeout.Error(), "exited")
}

func TestIsCode_Joined(t *testing.T) {
	joined := Join(errors.New("plain"), &RestartError{Command: "x", Cause: errors.New("y")})
	assert.True(t, IsCode(joined, CodeRestartFailed))
	assert.False(t, IsCode(joined, CodeConfigCorrupt))
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
}

func TestIncompleteLinkParamsError_As(t *testing.T) {
	var target *IncompleteLinkParamsError
	err := fmt.Errorf("generate: %w", &IncompleteLinkParamsError{Missing: []string{"flow"}})
	require.True(t, errors.As(err, &target))
	assert.Equal(t, []string{"flow"}, target.Missing)
}
