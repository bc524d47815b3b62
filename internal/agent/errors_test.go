package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *DispatchError
		want string
	}{
		{"unknown tool", &DispatchError{Type: DispatchUnknownTool, ToolName: "search"}, "no service for tool"},
		{"service unavailable", &DispatchError{Type: DispatchServiceUnavailable, ToolName: "search"}, "service unavailable"},
		{"unexpected result", &DispatchError{Type: DispatchUnexpectedResult, ToolName: "search"}, "unexpected format"},
		{
			"invalid arguments",
			&DispatchError{Type: DispatchInvalidArguments, ToolName: "search", Cause: errors.New("unexpected EOF")},
			"invalid arguments for search: unexpected EOF",
		},
		{
			"invocation failed with cause",
			&DispatchError{Type: DispatchInvocationFailed, ToolName: "search", Cause: errors.New("connection reset")},
			"connection reset",
		},
		{
			"invocation failed without cause",
			&DispatchError{Type: DispatchInvocationFailed, ToolName: "search"},
			"tool search failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDispatchErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &DispatchError{Type: DispatchInvocationFailed, ToolName: "t", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestIsDispatchError(t *testing.T) {
	var de *DispatchError = &DispatchError{Type: DispatchUnknownTool, ToolName: "t"}
	assert.True(t, IsDispatchError(de))
	assert.False(t, IsDispatchError(errors.New("plain")))

	wrapped := errors.Join(errors.New("context"), de)
	assert.True(t, IsDispatchError(wrapped))
}

func TestLoopErrorMessages(t *testing.T) {
	cause := errors.New("provider unreachable")

	withCause := &LoopError{Phase: PhaseModelCall, Iteration: 2, Cause: cause}
	assert.Contains(t, withCause.Error(), "model_call")
	assert.Contains(t, withCause.Error(), "2")
	assert.Contains(t, withCause.Error(), "provider unreachable")
	assert.ErrorIs(t, withCause, cause)

	withMessage := &LoopError{Phase: PhaseToolDispatch, Iteration: 1, Message: "dispatch failed"}
	assert.Contains(t, withMessage.Error(), "dispatch failed")

	bare := &LoopError{Phase: PhaseComplete, Iteration: 5}
	assert.Contains(t, bare.Error(), "complete")
}

func TestSentinelErrors(t *testing.T) {
	assert.EqualError(t, ErrMaxIterations, "max iterations exceeded")
	assert.EqualError(t, ErrNoProvider, "no provider configured")
}
