package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolfleet/orchestrator/internal/registry"
)

func TestHandleServiceInfoKnownURL(t *testing.T) {
	s, reg := newTestServer(t)
	reg.Add("http://weather/sse", "weather", fakeSession{}, []registry.Tool{
		{Name: "get_weather", Parameters: json.RawMessage(`{"type":"object"}`)},
	})

	req := httptest.NewRequest("GET", "/service_info?url=http://weather/sse", nil)
	rec := httptest.NewRecorder()
	s.handleServiceInfo(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp serviceInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "weather", resp.Name)
	assert.Equal(t, 1, resp.ToolCount)
	assert.Equal(t, "healthy", resp.Status)
}

func TestHandleServiceInfoUnknownURL(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/service_info?url=http://missing/sse", nil)
	rec := httptest.NewRecorder()
	s.handleServiceInfo(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestHandleRemoveServiceDetachesAndReturnsDetails(t *testing.T) {
	s, reg := newTestServer(t)
	reg.Add("http://weather/sse", "weather", fakeSession{}, nil)

	req := httptest.NewRequest("POST", "/remove_service?url=http://weather/sse", nil)
	rec := httptest.NewRecorder()
	s.handleRemoveService(rec, req)

	require.Equal(t, 200, rec.Code)
	_, ok := reg.SessionFor("http://weather/sse")
	assert.False(t, ok)
}

func TestHandleRemoveServiceUnknownURL(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/remove_service?url=http://missing/sse", nil)
	rec := httptest.NewRecorder()
	s.handleRemoveService(rec, req)
	assert.Equal(t, 404, rec.Code)
}
