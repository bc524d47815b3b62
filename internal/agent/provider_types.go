package agent

import "context"

// LLMProvider is the external interface described in §6: a chat
// completion backend the driver calls with (model, messages, tools).
// Implementations (internal/agent/providers) wrap a concrete SDK;
// tests inject a fake so the loop never touches the network.
type LLMProvider interface {
	// Complete sends a request and returns a channel of streaming
	// chunks. The channel is closed after a chunk with Done=true or an
	// error chunk. Collected and step-streamed modes simply drain the
	// channel to completion before inspecting the result; token-streamed
	// mode forwards each chunk as it arrives.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name identifies the provider for logging and config selection.
	Name() string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ArgsJSON  string `json:"args_json"`
}

// CompletionRequest carries the full state the model needs for one
// driver iteration: the system prompt, the accumulated message history,
// and the tool snapshot taken at loop start (§4.6 "available_tools").
type CompletionRequest struct {
	Model     string               `json:"model"`
	System    string               `json:"system,omitempty"`
	Messages  []CompletionMessage  `json:"messages"`
	Tools     []ToolSpec           `json:"tools,omitempty"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
	Stream    bool                 `json:"stream,omitempty"`
}

// CompletionMessage is one turn in the conversation: system, user,
// assistant (possibly carrying a tool call), or tool (carrying a result).
type CompletionMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCall   *ToolCall  `json:"tool_call,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSpec is the shape a tool takes when offered to the model: name,
// description (already normalized per §4.6's system-prompt contract),
// and its object-typed JSON Schema.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  []byte `json:"parameters"`
}

// FinishReason classifies why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// CompletionChunk is one unit of streamed (or, for collected mode,
// synthesized) model output.
type CompletionChunk struct {
	// Text is incremental response content outside any <think> marker.
	Text string `json:"text,omitempty"`

	// Thinking is incremental content inside a <think>...</think> marker
	// (token-streamed mode) or a model-native thinking channel.
	Thinking string `json:"thinking,omitempty"`

	// ToolCalls is populated on the chunk that completes the model's
	// turn when FinishReason is tool_calls. §4.6 step 2 only acts on
	// the first entry; further entries are preserved for providers that
	// batch multiple requests into one turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// FinishReason is set on the final chunk of a turn.
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Done marks the end of the stream for this request.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream early if non-nil.
	Error error `json:"-"`
}
