package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport used to exercise Session without
// any network I/O, following the teacher's preference for fakes over
// real servers in unit tests.
type fakeTransport struct {
	connectErr error
	connected  bool

	calls     []string
	responses map[string]json.RawMessage
	errs      map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, method)
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	return f.responses[method], nil
}

func (f *fakeTransport) Connected() bool { return f.connected }

func (f *fakeTransport) Close() error {
	f.connected = false
	return nil
}

func TestSessionInitialize(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["initialize"] = json.RawMessage(`{"protocolVersion":"2024-11-05","serverInfo":{"name":"weather","version":"1.0"}}`)

	s := NewSession(ft, nil)
	info, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "weather", info.Name)
	assert.True(t, ft.connected)
	assert.Contains(t, ft.calls, "initialize")
}

func TestSessionInitializeConnectFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = errors.New("dial refused")

	s := NewSession(ft, nil)
	_, err := s.Initialize(context.Background())
	require.Error(t, err)
}

func TestSessionListToolsNormalizesParameters(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["tools/list"] = json.RawMessage(`{"tools":[
		{"name":"get_weather","description":"fetch weather","parameters":{"location":{"type":"string"}}},
		{"name":"ping","description":"no args"}
	]}`)

	s := NewSession(ft, nil)
	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	var schema0 map[string]any
	require.NoError(t, json.Unmarshal(tools[0].Parameters, &schema0))
	assert.Equal(t, "object", schema0["type"])

	var schema1 map[string]any
	require.NoError(t, json.Unmarshal(tools[1].Parameters, &schema1))
	assert.Equal(t, "object", schema1["type"])
}

func TestSessionCallTool(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["tools/call"] = json.RawMessage(`{"content":[{"type":"text","text":"72F and sunny"}]}`)

	s := NewSession(ft, nil)
	result, err := s.CallTool(context.Background(), "get_weather", json.RawMessage(`{"location":"sf"}`))
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "72F and sunny", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestSessionCallToolPropagatesTransportError(t *testing.T) {
	ft := newFakeTransport()
	ft.errs["tools/call"] = errors.New("connection reset")

	s := NewSession(ft, nil)
	_, err := s.CallTool(context.Background(), "get_weather", nil)
	require.Error(t, err)
}

func TestSessionAliveReflectsTransport(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(ft, nil)
	assert.False(t, s.Alive())

	ft.connected = true
	assert.True(t, s.Alive())
}
