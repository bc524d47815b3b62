package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolfleet/orchestrator/internal/registry"
	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// fakeTransport is a scriptable toolserver.Transport used to drive the
// orchestrator's attach logic deterministically, with no network I/O.
type fakeTransport struct {
	connectErr     error
	connectCalls   int
	callResponses  map[string]json.RawMessage
	callErrs       map[string]error
	connectedFlag  bool
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connectedFlag = true
	return nil
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err, ok := f.callErrs[method]; ok {
		return nil, err
	}
	return f.callResponses[method], nil
}

func (f *fakeTransport) Connected() bool { return f.connectedFlag }
func (f *fakeTransport) Close() error    { f.connectedFlag = false; return nil }

func newTestOrchestrator(factory func() toolserver.Transport) (*Orchestrator, *registry.Registry) {
	reg := registry.New(nil)
	orch := New(reg, DefaultTiming(), slog.Default())
	orch.newTransport = func(cfg toolserver.Config, logger *slog.Logger) toolserver.Transport {
		return factory()
	}
	return orch, reg
}

func successfulTransport() *fakeTransport {
	return &fakeTransport{
		callResponses: map[string]json.RawMessage{
			"initialize": json.RawMessage(`{"protocolVersion":"2024-11-05","serverInfo":{"name":"weather"}}`),
			"tools/list": json.RawMessage(`{"tools":[{"name":"get_weather","parameters":{"type":"object"}}]}`),
		},
	}
}

func TestAttachSucceedsAndInstallsTools(t *testing.T) {
	orch, reg := newTestOrchestrator(func() toolserver.Transport { return successfulTransport() })

	msg, err := orch.Attach(context.Background(), toolserver.Config{URL: "http://weather/sse", Name: "weather"})
	require.NoError(t, err)
	assert.Contains(t, msg, "weather")

	_, ok := reg.SessionFor("http://weather/sse")
	assert.True(t, ok)
	_, _, ok = reg.SessionForTool("get_weather")
	assert.True(t, ok)
	assert.False(t, orch.pending.Contains("http://weather/sse"))
}

func TestAttachRejectsInvalidConfig(t *testing.T) {
	orch, _ := newTestOrchestrator(func() toolserver.Transport { return successfulTransport() })

	_, err := orch.Attach(context.Background(), toolserver.Config{URL: ""})
	require.Error(t, err)

	var attachErr *AttachError
	require.ErrorAs(t, err, &attachErr)
	assert.Equal(t, AttachSetup, attachErr.Kind)
}

func TestAttachClassifiesUnreachableAsRetryable(t *testing.T) {
	orch, _ := newTestOrchestrator(func() toolserver.Transport {
		return &fakeTransport{connectErr: errors.New("dial tcp: connection refused")}
	})

	_, err := orch.Attach(context.Background(), toolserver.Config{URL: "http://ghost/sse"})
	require.Error(t, err)

	var attachErr *AttachError
	require.ErrorAs(t, err, &attachErr)
	assert.Equal(t, AttachUnreachable, attachErr.Kind)
	assert.True(t, attachErr.Retryable())
	assert.True(t, attachErr.ShouldPendReconnect())
}

func TestAttachPreflightDetachesExistingSession(t *testing.T) {
	orch, reg := newTestOrchestrator(func() toolserver.Transport { return successfulTransport() })

	_, err := orch.Attach(context.Background(), toolserver.Config{URL: "http://weather/sse", Name: "weather"})
	require.NoError(t, err)
	first, _ := reg.SessionFor("http://weather/sse")

	_, err = orch.Attach(context.Background(), toolserver.Config{URL: "http://weather/sse", Name: "weather-v2"})
	require.NoError(t, err)
	second, _ := reg.SessionFor("http://weather/sse")

	assert.NotSame(t, first, second, "re-attach must install a fresh session, not mutate in place")
}

func TestDetachIsIdempotent(t *testing.T) {
	orch, reg := newTestOrchestrator(func() toolserver.Transport { return successfulTransport() })
	_, err := orch.Attach(context.Background(), toolserver.Config{URL: "http://weather/sse"})
	require.NoError(t, err)

	orch.Detach("http://weather/sse")
	orch.Detach("http://weather/sse") // must not panic

	_, ok := reg.SessionFor("http://weather/sse")
	assert.False(t, ok)
}

func TestRegisterQueuesUnreachableForReconnection(t *testing.T) {
	orch, _ := newTestOrchestrator(func() toolserver.Transport {
		return &fakeTransport{connectErr: errors.New("dial tcp: connection refused")}
	})

	outcome := orch.Register(context.Background(), ServerRegistration{URL: "http://ghost/sse", Name: "ghost"})
	require.NotNil(t, outcome.Err)
	assert.Equal(t, AttachUnreachable, outcome.Err.Kind)
	assert.True(t, orch.pending.Contains("http://ghost/sse"))
}

func TestHeartbeatLoopExpiresStaleSessionsAndQueuesReconnect(t *testing.T) {
	orch, reg := newTestOrchestrator(func() toolserver.Transport { return successfulTransport() })
	timing := DefaultTiming()
	timing.HeartbeatTimeout = time.Millisecond
	orch.timing = timing

	_, err := orch.Attach(context.Background(), toolserver.Config{URL: "http://weather/sse"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	orch.heartbeatTick(context.Background())

	_, ok := reg.SessionFor("http://weather/sse")
	assert.False(t, ok, "expired session must be detached")
	assert.True(t, orch.pending.Contains("http://weather/sse"), "expired url must be queued for reconnection")
}

func TestReconnectLoopRetriesPendingURLs(t *testing.T) {
	attempts := 0
	orch, reg := newTestOrchestrator(func() toolserver.Transport {
		attempts++
		return successfulTransport()
	})

	orch.pending.Add("http://weather/sse")
	orch.mu.Lock()
	orch.configs["http://weather/sse"] = toolserver.Config{URL: "http://weather/sse", Name: "weather"}
	orch.mu.Unlock()

	orch.reconnectTick(context.Background())

	assert.False(t, orch.pending.Contains("http://weather/sse"))
	_, ok := reg.SessionFor("http://weather/sse")
	assert.True(t, ok)
	assert.Equal(t, 1, attempts)
}
