package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for agent-loop control flow.
var (
	// ErrMaxIterations indicates the loop exceeded its iteration bound.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// DispatchErrorType categorizes why a tool dispatch produced an error
// result, per §7's taxonomy for the agent driver's tool-call subflow.
// Unlike an orchestrator AttachError, a dispatch error never aborts the
// loop — it is folded into the tool-result string fed back to the model.
type DispatchErrorType string

const (
	// DispatchUnknownTool means registry.SessionForTool found no owner.
	DispatchUnknownTool DispatchErrorType = "unknown_tool"

	// DispatchServiceUnavailable means the owner was resolved but failed
	// the health check at dispatch time.
	DispatchServiceUnavailable DispatchErrorType = "service_unavailable"

	// DispatchInvalidArguments means the model's args_json failed to parse.
	DispatchInvalidArguments DispatchErrorType = "invalid_arguments"

	// DispatchInvocationFailed means owner.CallTool itself returned an error.
	DispatchInvocationFailed DispatchErrorType = "invocation_failed"

	// DispatchUnexpectedResult means the call succeeded but its shape
	// didn't match the expected content[0].text convention.
	DispatchUnexpectedResult DispatchErrorType = "unexpected_result"
)

// DispatchError is a structured record of why a single tool call failed.
// Its Error() text is exactly what gets folded back into the
// conversation as the tool-result string (§4.6 step 2), so its wording
// is part of the observable contract, not just diagnostics.
type DispatchError struct {
	Type     DispatchErrorType
	ToolName string
	Cause    error
}

func (e *DispatchError) Error() string {
	switch e.Type {
	case DispatchUnknownTool:
		return "no service for tool"
	case DispatchServiceUnavailable:
		return "service unavailable"
	case DispatchUnexpectedResult:
		return "unexpected format"
	case DispatchInvalidArguments:
		return fmt.Sprintf("invalid arguments for %s: %v", e.ToolName, e.Cause)
	case DispatchInvocationFailed:
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return fmt.Sprintf("tool %s failed", e.ToolName)
	default:
		return fmt.Sprintf("tool %s failed", e.ToolName)
	}
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// IsDispatchError reports whether err is or wraps a DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

// LoopError records which phase and iteration an unrecoverable driver
// error (as opposed to a per-tool DispatchError) occurred in.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Message   string
	Cause     error
}

func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loop error at %s (iteration %d): %s", e.Phase, e.Iteration, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (iteration %d)", e.Phase, e.Iteration)
}

func (e *LoopError) Unwrap() error { return e.Cause }

// LoopPhase identifies a distinct phase of the §4.6 driver loop.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseModelCall    LoopPhase = "model_call"
	PhaseToolDispatch LoopPhase = "tool_dispatch"
	PhaseComplete     LoopPhase = "complete"
)
