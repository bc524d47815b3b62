package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Session is the L1 capability the registry and orchestrator depend on: a
// live connection to one tool server offering initialize, list_tools and
// call_tool. Callers never see the transport directly.
type Session interface {
	// Initialize performs the protocol handshake and returns the remote
	// server's self-reported identity.
	Initialize(ctx context.Context) (ServerInfo, error)

	// ListTools returns the manifest currently advertised by the server,
	// with every tool's Parameters already normalized (§4.2).
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a single tool by name and returns its result.
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (CallToolResult, error)

	// Alive reports the transport's liveness hint without making a call.
	Alive() bool

	// Close releases the session's underlying transport.
	Close() error
}

// session is the concrete Session implementation over a Transport.
type session struct {
	transport Transport
	logger    *slog.Logger

	mu   sync.Mutex
	info ServerInfo
}

// NewSession wraps transport as a Session. The transport must already be
// built (e.g. via NewSSETransport) but need not be connected yet.
func NewSession(transport Transport, logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &session{transport: transport, logger: logger.With("component", "toolserver.session")}
}

func (s *session) Initialize(ctx context.Context) (ServerInfo, error) {
	if err := s.transport.Connect(ctx); err != nil {
		return ServerInfo{}, fmt.Errorf("connect: %w", err)
	}
	raw, err := s.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
	})
	if err != nil {
		return ServerInfo{}, fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ServerInfo{}, fmt.Errorf("decoding initialize result: %w", err)
	}
	s.mu.Lock()
	s.info = result.ServerInfo
	s.mu.Unlock()
	return result.ServerInfo, nil
}

func (s *session) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := s.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding tools/list result: %w", err)
	}
	for i := range result.Tools {
		result.Tools[i].Parameters = normalizeWithSchemaCheck(result.Tools[i].Parameters, s.logger)
	}
	return result.Tools, nil
}

func (s *session) CallTool(ctx context.Context, name string, arguments json.RawMessage) (CallToolResult, error) {
	raw, err := s.transport.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return CallToolResult{}, fmt.Errorf("tools/call %q: %w", name, err)
	}
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("decoding tools/call result: %w", err)
	}
	return result, nil
}

func (s *session) Alive() bool {
	return s.transport.Connected()
}

func (s *session) Close() error {
	return s.transport.Close()
}

// normalizeWithSchemaCheck performs the §4.2a syntax check before applying
// the §4.2 wrap-if-needed normalization. A parameters value that fails to
// load or compile as a JSON Schema is only logged: it then goes through
// NormalizeParameters like any other value, so an object-typed value that
// fails to compile is kept as it is, not wrapped.
func normalizeWithSchemaCheck(raw json.RawMessage, logger *slog.Logger) json.RawMessage {
	if len(raw) == 0 {
		return NormalizeParameters(raw)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.json", bytes.NewReader(raw)); err != nil {
		logger.Debug("tool parameters failed schema resource load, wrapping", "error", err)
		return NormalizeParameters(raw)
	}
	if _, err := compiler.Compile("params.json"); err != nil {
		logger.Debug("tool parameters failed schema compile, wrapping", "error", err)
		return NormalizeParameters(raw)
	}
	return NormalizeParameters(raw)
}
