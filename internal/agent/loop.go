// Package agent implements the L4 Agent Driver: the think/act/observe
// loop that turns a user query into a final answer, dispatching tool
// calls through the registry and bounded by an iteration limit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/toolfleet/orchestrator/internal/registry"
)

// DriverConfig configures one Driver instance. Unset fields fall back to
// the §6 timing-configuration defaults.
type DriverConfig struct {
	// Model is passed through to the provider on every completion request.
	Model string

	// MaxIterations bounds the loop (default 25, per §4.6 and §6
	// react_max_iterations).
	MaxIterations int

	// MaxTokens bounds each completion request's response length.
	MaxTokens int

	// HeartbeatTimeout is the staleness bound used by is_service_healthy
	// (§4.6 "Health integration"); it must match the orchestrator's
	// configured heartbeat_timeout for the two components' view of
	// liveness to agree.
	HeartbeatTimeout time.Duration

	// EnableTrace turns on trace-step recording (react_enable_trace).
	EnableTrace bool
}

func sanitizeDriverConfig(cfg DriverConfig) DriverConfig {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 180 * time.Second
	}
	return cfg
}

// Driver runs the §4.6 state machine. One Driver is built once per
// process and reused across queries; per-query state (messages,
// iteration count, tool snapshot) lives in a run, never on the Driver.
type Driver struct {
	provider LLMProvider
	registry *registry.Registry
	config   DriverConfig
	logger   *slog.Logger
}

// NewDriver builds a Driver over provider and reg.
func NewDriver(provider LLMProvider, reg *registry.Registry, cfg DriverConfig, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		provider: provider,
		registry: reg,
		config:   sanitizeDriverConfig(cfg),
		logger:   logger.With("component", "agent.driver"),
	}
}

// run holds the mutable state of a single query's execution: the message
// history, the tool snapshot frozen at start, and the optional trace.
// Never shared across queries.
type run struct {
	driver  *Driver
	trace   *Trace
	messages []CompletionMessage
	tools    []ToolSpec
}

func (d *Driver) newRun(query string) *run {
	tools := toolSpecsFromRegistry(d.registry)
	r := &run{
		driver: d,
		tools:  tools,
		messages: []CompletionMessage{
			{Role: "user", Content: query},
		},
	}
	if d.config.EnableTrace {
		r.trace = NewTrace()
	}
	return r
}

func (r *run) systemPrompt() string {
	return buildSystemPrompt(r.tools)
}

// Run executes the collected emission mode: only the final string is
// returned. A trace recorded under EnableTrace stays on the per-query run
// and is not returned to the caller.
func (d *Driver) Run(ctx context.Context, query string) (string, error) {
	r := d.newRun(query)
	final, err := r.loop(ctx, nil)
	return final, err
}

// Trace returns this run's recorded trace steps, or nil if tracing was
// disabled.
func (r *run) Trace() []TraceStep {
	if r.trace == nil {
		return nil
	}
	return r.trace.Steps()
}

// StepEvent is one record of the step-streamed emission mode (§4.6).
type StepEvent struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Content  string          `json:"content,omitempty"`
	Status   string          `json:"status,omitempty"`
	Tool     string          `json:"tool,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   string          `json:"result,omitempty"`
	IsFinal  bool            `json:"is_final,omitempty"`
}

// RunStepStream executes the step-streamed emission mode, calling emit
// for every state transition and finishing with an IsFinal record.
func (d *Driver) RunStepStream(ctx context.Context, query string, emit func(StepEvent)) (string, error) {
	r := d.newRun(query)
	return r.loop(ctx, func(e loopEvent) {
		switch e.kind {
		case eventModelCallStart:
			emit(StepEvent{Type: "thinking", ID: e.id, Status: "start"})
		case eventModelCallComplete:
			emit(StepEvent{Type: "thinking", ID: e.id, Content: e.content, Status: "complete"})
		case eventToolCallStart:
			emit(StepEvent{Type: "tool_call", ID: e.id, Tool: e.tool, Params: e.params, Status: "start"})
		case eventToolCallComplete:
			emit(StepEvent{Type: "tool_call", ID: e.id, Tool: e.tool, Params: e.params, Result: e.content, Status: "complete"})
		case eventFinal:
			emit(StepEvent{IsFinal: true, Result: e.content})
		}
	})
}

// TokenEvent is one record of the token-streamed emission mode.
type TokenEvent struct {
	Type     string          `json:"type"` // "thinking" | "content" | "tool_call"
	ThinkingID string        `json:"thinking_id,omitempty"`
	Text     string          `json:"text,omitempty"`
	ID       string          `json:"id,omitempty"`
	Tool     string          `json:"tool,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   string          `json:"result,omitempty"`
	Status   string          `json:"status,omitempty"`
	IsFinal  bool            `json:"is_final,omitempty"`
}

// RunTokenStream executes the token-streamed emission mode: raw model
// token deltas are forwarded, with inline <think>...</think> markers
// split into "thinking" vs "content" token events sharing one thinking
// id for the whole block, per §4.6.
func (d *Driver) RunTokenStream(ctx context.Context, query string, emit func(TokenEvent)) (string, error) {
	r := d.newRun(query)
	detector := newThinkMarkerDetector()

	return r.loop(ctx, func(e loopEvent) {
		switch e.kind {
		case eventModelToken:
			thinkingID := detector.id
			for _, seg := range detector.Feed(e.content) {
				if seg.thinking {
					emit(TokenEvent{Type: "thinking", ThinkingID: thinkingID, Text: seg.text})
				} else {
					emit(TokenEvent{Type: "content", Text: seg.text})
				}
			}
		case eventToolCallStart:
			emit(TokenEvent{Type: "tool_call", ID: e.id, Tool: e.tool, Params: e.params, Status: "start"})
		case eventToolCallComplete:
			emit(TokenEvent{Type: "tool_call", ID: e.id, Tool: e.tool, Params: e.params, Result: e.content, Status: "complete"})
		case eventFinal:
			emit(TokenEvent{IsFinal: true, Text: e.content})
		}
	})
}

// loopEventKind tags the internal notifications a run emits as it
// progresses; each public Run* method maps these onto its own wire
// shape.
type loopEventKind int

const (
	eventModelCallStart loopEventKind = iota
	eventModelCallComplete
	eventModelToken
	eventToolCallStart
	eventToolCallComplete
	eventFinal
)

type loopEvent struct {
	kind    loopEventKind
	id      string
	tool    string
	params  json.RawMessage
	content string
}

// loop implements the §4.6 state machine shared by all three emission
// modes. notify is called for every internal transition; modes that
// don't need a given transition simply ignore it in their switch.
func (r *run) loop(ctx context.Context, notify func(loopEvent)) (string, error) {
	d := r.driver
	system := r.systemPrompt()
	var lastAssistantContent string

	for iteration := 1; iteration <= d.config.MaxIterations; iteration++ {
		modelCallID := newID()
		if notify != nil {
			notify(loopEvent{kind: eventModelCallStart, id: modelCallID})
		}

		req := &CompletionRequest{
			Model:     d.config.Model,
			System:    system,
			Messages:  r.messages,
			Tools:     r.tools,
			MaxTokens: d.config.MaxTokens,
		}

		content, toolCall, finish, err := r.runOneCompletion(ctx, req, notify)
		if err != nil {
			return "", &LoopError{Phase: PhaseModelCall, Iteration: iteration, Cause: err}
		}
		lastAssistantContent = content

		if notify != nil {
			notify(loopEvent{kind: eventModelCallComplete, id: modelCallID, content: content})
		}
		if r.trace != nil {
			r.trace.appendThinking(content)
		}

		if finish != FinishToolCalls || toolCall == nil {
			if r.trace != nil {
				r.trace.appendFinal(content)
			}
			if notify != nil {
				notify(loopEvent{kind: eventFinal, content: content})
			}
			return content, nil
		}

		r.messages = append(r.messages, CompletionMessage{
			Role:     "assistant",
			Content:  content,
			ToolCall: toolCall,
		})

		resultText, toolErrText := r.dispatch(ctx, *toolCall, notify)

		r.messages = append(r.messages, CompletionMessage{
			Role:       "tool",
			Content:    resultText,
			ToolCallID: toolCall.ID,
		})
		if r.trace != nil {
			var toolErr string
			if toolErrText != "" {
				toolErr = toolErrText
			}
			r.trace.appendToolCall(toolCall.Name, json.RawMessage(toolCall.ArgsJSON), resultText, toolErr)
		}
	}

	final := fmt.Sprintf("Processing for query exceeded the maximum iteration limit (%d). %s",
		d.config.MaxIterations, lastAssistantContent)
	if r.trace != nil {
		r.trace.appendFinal(final)
	}
	if notify != nil {
		notify(loopEvent{kind: eventFinal, content: final})
	}
	return final, nil
}

// runOneCompletion drives a single provider.Complete call to completion,
// forwarding token deltas to notify (token-streamed mode) while
// aggregating the full text/tool-call/finish-reason the rest of the loop
// needs regardless of emission mode.
func (r *run) runOneCompletion(ctx context.Context, req *CompletionRequest, notify func(loopEvent)) (string, *ToolCall, FinishReason, error) {
	chunks, err := r.driver.provider.Complete(ctx, req)
	if err != nil {
		return "", nil, "", err
	}

	var textBuilder strings.Builder
	var toolCall *ToolCall
	var finish FinishReason

	for chunk := range chunks {
		if chunk.Error != nil {
			return "", nil, "", chunk.Error
		}
		if chunk.Text != "" {
			textBuilder.WriteString(chunk.Text)
			if notify != nil {
				notify(loopEvent{kind: eventModelToken, content: chunk.Text})
			}
		}
		if chunk.Thinking != "" && notify != nil {
			notify(loopEvent{kind: eventModelToken, content: "<think>" + chunk.Thinking + "</think>"})
		}
		if len(chunk.ToolCalls) > 0 && toolCall == nil {
			tc := chunk.ToolCalls[0]
			toolCall = &tc
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Done {
			break
		}
	}

	return textBuilder.String(), toolCall, finish, nil
}

// dispatch resolves and invokes a single requested tool call, per §4.6
// step 2's tool-call subflow. It never returns a Go error — every
// failure mode becomes the tool-result string fed back to the model, so
// the loop can never be aborted by a single bad tool call.
func (r *run) dispatch(ctx context.Context, call ToolCall, notify func(loopEvent)) (result string, toolErr string) {
	toolCallID := call.ID
	if toolCallID == "" {
		toolCallID = newID()
	}

	var args json.RawMessage
	if call.ArgsJSON != "" {
		if !json.Valid([]byte(call.ArgsJSON)) {
			err := &DispatchError{
				Type:     DispatchInvalidArguments,
				ToolName: call.Name,
				Cause:    fmt.Errorf("invalid JSON: %s", call.ArgsJSON),
			}
			return r.finishDispatch(notify, toolCallID, call.Name, nil, err)
		}
		args = json.RawMessage(call.ArgsJSON)
	}

	if notify != nil {
		notify(loopEvent{kind: eventToolCallStart, id: toolCallID, tool: call.Name, params: args})
	}

	session, url, ok := r.driver.registry.SessionForTool(call.Name)
	if !ok {
		err := &DispatchError{Type: DispatchUnknownTool, ToolName: call.Name}
		return r.finishDispatch(notify, toolCallID, call.Name, args, err)
	}

	if !r.driver.isServiceHealthy(url) {
		err := &DispatchError{Type: DispatchServiceUnavailable, ToolName: call.Name}
		return r.finishDispatch(notify, toolCallID, call.Name, args, err)
	}

	callResult, err := session.CallTool(ctx, call.Name, args)
	if err != nil {
		dispatchErr := &DispatchError{Type: DispatchInvocationFailed, ToolName: call.Name, Cause: err}
		return r.finishDispatch(notify, toolCallID, call.Name, args, dispatchErr)
	}

	if len(callResult.Content) == 0 || callResult.Content[0].Text == "" {
		dispatchErr := &DispatchError{Type: DispatchUnexpectedResult, ToolName: call.Name}
		return r.finishDispatch(notify, toolCallID, call.Name, args, dispatchErr)
	}

	text := callResult.Content[0].Text
	if notify != nil {
		notify(loopEvent{kind: eventToolCallComplete, id: toolCallID, tool: call.Name, params: args, content: text})
	}
	return text, ""
}

func (r *run) finishDispatch(notify func(loopEvent), id, tool string, args json.RawMessage, err *DispatchError) (string, string) {
	msg := err.Error()
	if notify != nil {
		notify(loopEvent{kind: eventToolCallComplete, id: id, tool: tool, params: args, content: msg})
	}
	return msg, msg
}

// isServiceHealthy implements §4.6 "Health integration": checked at
// dispatch time, not at plan time.
func (d *Driver) isServiceHealthy(url string) bool {
	return d.registry.IsHealthy(url, d.config.HeartbeatTimeout)
}

// toolSpecsFromRegistry snapshots registry.AllTools() once, with
// descriptions normalized per the §4.6 system-prompt contract.
func toolSpecsFromRegistry(reg *registry.Registry) []ToolSpec {
	tools := reg.AllTools()
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: normalizeToolDescription(t.Name, t.Description),
			Parameters:  t.Parameters,
		})
	}
	return specs
}

// normalizeToolDescription appends a trailing period if missing and a
// "use this tool when..." suffix if the description doesn't already
// mention using the tool (case-insensitive), per §4.6.
func normalizeToolDescription(name, description string) string {
	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = fmt.Sprintf("Invokes the %s tool.", name)
	}
	if !strings.HasSuffix(desc, ".") && !strings.HasSuffix(desc, "!") && !strings.HasSuffix(desc, "?") {
		desc += "."
	}
	if !strings.Contains(strings.ToLower(desc), "use this tool") {
		desc += fmt.Sprintf(" Use this tool when you need %s-related functionality.", name)
	}
	return desc
}

// buildSystemPrompt renders the §4.6 system-prompt contract: think/act/
// observe framing followed by one "name: description" line per tool.
func buildSystemPrompt(tools []ToolSpec) string {
	var b strings.Builder
	b.WriteString("You operate in think, act, and observe cycles. ")
	b.WriteString("Think about what the user needs, act by calling a tool when one helps, ")
	b.WriteString("and observe its result before deciding your next step or final answer.\n\n")

	if len(tools) == 0 {
		b.WriteString("No tools are currently available.")
		return b.String()
	}

	b.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "%s: %s\n", t.Name, t.Description)
	}
	return b.String()
}
