package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// fakeSession is a no-op toolserver.Session used to exercise the registry
// without a real tool-server connection.
type fakeSession struct{ id string }

func (f *fakeSession) Initialize(ctx context.Context) (toolserver.ServerInfo, error) {
	return toolserver.ServerInfo{Name: f.id}, nil
}
func (f *fakeSession) ListTools(ctx context.Context) ([]toolserver.Tool, error) { return nil, nil }
func (f *fakeSession) CallTool(ctx context.Context, name string, args json.RawMessage) (toolserver.CallToolResult, error) {
	return toolserver.CallToolResult{}, nil
}
func (f *fakeSession) Alive() bool { return true }
func (f *fakeSession) Close() error { return nil }

func TestAddInstallsToolsAndSetsHeartbeat(t *testing.T) {
	r := New(nil)
	tools := []Tool{{Name: "get_weather", Parameters: json.RawMessage(`{"type":"object"}`)}}

	installed := r.Add("http://weather:8000/sse", "weather", &fakeSession{id: "weather"}, tools)
	assert.Equal(t, []string{"get_weather"}, installed)

	session, ok := r.SessionFor("http://weather:8000/sse")
	require.True(t, ok)
	assert.NotNil(t, session)

	owner, url, ok := r.SessionForTool("get_weather")
	require.True(t, ok)
	assert.NotNil(t, owner)
	assert.Equal(t, "http://weather:8000/sse", url)

	assert.True(t, r.IsHealthy("http://weather:8000/sse", time.Minute))
}

func TestAddSkipsCollidingToolName(t *testing.T) {
	r := New(nil)
	first := []Tool{{Name: "search", Parameters: json.RawMessage(`{"type":"object"}`)}}
	second := []Tool{{Name: "search", Parameters: json.RawMessage(`{"type":"object"}`)}}

	installed1 := r.Add("http://a/sse", "a", &fakeSession{id: "a"}, first)
	installed2 := r.Add("http://b/sse", "b", &fakeSession{id: "b"}, second)

	assert.Equal(t, []string{"search"}, installed1)
	assert.Empty(t, installed2, "colliding tool name must be skipped, not overwritten")

	_, url, ok := r.SessionForTool("search")
	require.True(t, ok)
	assert.Equal(t, "http://a/sse", url, "first writer must remain the owner")
}

func TestRemoveIsAtomicAndIdempotent(t *testing.T) {
	r := New(nil)
	tools := []Tool{
		{Name: "t1", Parameters: json.RawMessage(`{"type":"object"}`)},
		{Name: "t2", Parameters: json.RawMessage(`{"type":"object"}`)},
	}
	r.Add("http://svc/sse", "svc", &fakeSession{id: "svc"}, tools)

	session, ok := r.Remove("http://svc/sse")
	require.True(t, ok)
	assert.NotNil(t, session)

	_, ok = r.SessionFor("http://svc/sse")
	assert.False(t, ok)
	_, _, ok = r.SessionForTool("t1")
	assert.False(t, ok)
	_, _, ok = r.SessionForTool("t2")
	assert.False(t, ok)

	_, ok = r.Remove("http://svc/sse")
	assert.False(t, ok, "remove must be idempotent")
}

func TestUpdateHealthNoOpForUnknownURL(t *testing.T) {
	r := New(nil)
	r.UpdateHealth("http://ghost/sse") // must not panic
	assert.False(t, r.IsHealthy("http://ghost/sse", time.Minute))
}

func TestExpiredURLsUsesTimeBasedExpiry(t *testing.T) {
	r := New(nil)
	r.Add("http://stale/sse", "stale", &fakeSession{id: "stale"}, nil)

	// Force the heartbeat into the past with a manual backdate.
	r.mu.Lock()
	r.lastHeartbeat["http://stale/sse"] = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	expired := r.ExpiredURLs(time.Minute)
	assert.Contains(t, expired, "http://stale/sse")
}

func TestAllToolsSnapshotIsIndependent(t *testing.T) {
	r := New(nil)
	r.Add("http://svc/sse", "svc", &fakeSession{id: "svc"}, []Tool{
		{Name: "t1", Parameters: json.RawMessage(`{"type":"object"}`)},
	})

	snapshot := r.AllTools()
	require.Len(t, snapshot, 1)

	r.Remove("http://svc/sse")
	assert.Len(t, snapshot, 1, "snapshot must not be affected by later mutation")
}
