package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
)

// jsonrpcRequest is the JSON-RPC 2.0 envelope sent to a tool server.
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonrpcResponse is the JSON-RPC 2.0 envelope received from a tool server.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError is the JSON-RPC 2.0 error object.
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Transport is the wire-level capability a Session is built on. It is
// deliberately narrow: connect, make a blocking call, report liveness,
// close. Everything above this (initialize/list_tools/call_tool framing)
// lives in Session so the registry and orchestrator never depend on the
// concrete transport.
type Transport interface {
	// Connect establishes the underlying connection (e.g. opens the SSE
	// stream and discovers the POST endpoint for the session).
	Connect(ctx context.Context) error

	// Call issues a JSON-RPC request and blocks for the matching response,
	// or until ctx is done.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Connected reports whether the transport believes its connection is
	// currently usable. It is a liveness hint, not a guarantee — Call can
	// still fail even when Connected reports true.
	Connected() bool

	// Close tears down the connection and releases background resources.
	Close() error
}
