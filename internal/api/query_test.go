package api

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolfleet/orchestrator/internal/agent"
)

// fakeProvider is a scriptable agent.LLMProvider that answers with a
// single final chunk, never touching the network.
type fakeProvider struct{ answer string }

func (f fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: f.answer, FinishReason: agent.FinishStop, Done: true}
	close(ch)
	return ch, nil
}

func (f fakeProvider) Name() string { return "fake" }

func newTestServerWithDriver(t *testing.T, answer string) *Server {
	t.Helper()
	s, _ := newTestServer(t)
	s.driver = agent.NewDriver(fakeProvider{answer: answer}, s.orch.Registry(), agent.DriverConfig{
		EnableTrace: true,
	}, slog.Default())
	return s
}

func TestHandleQueryReturnsFinalAnswer(t *testing.T) {
	s := newTestServerWithDriver(t, "42")

	body := strings.NewReader(`{"query":"what is the answer?"}`)
	req := httptest.NewRequest("POST", "/query", body)
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Result)
	assert.Nil(t, resp.ExecutionTrace)
}

func TestHandleQueryWithTraceIncludesSteps(t *testing.T) {
	s := newTestServerWithDriver(t, "42")

	body := strings.NewReader(`{"query":"what is the answer?","include_trace":true}`)
	req := httptest.NewRequest("POST", "/query", body)
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Result)
	require.Len(t, resp.ExecutionTrace, 1)
	assert.Equal(t, "thinking", resp.ExecutionTrace[0].Type)
}

func TestHandleQueryRejectsMissingQuery(t *testing.T) {
	s := newTestServerWithDriver(t, "42")
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestHandleQueryRejectsBadMode(t *testing.T) {
	s := newTestServerWithDriver(t, "42")
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"x","mode":"bogus"}`))
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestHandleQueryStreamEmitsFinalEvent(t *testing.T) {
	s := newTestServerWithDriver(t, "42")
	req := httptest.NewRequest("GET", "/query_stream?query=hi", nil)
	rec := httptest.NewRecorder()
	s.handleQueryStream(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	var sawFinal bool
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event agent.StepEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		if event.IsFinal {
			sawFinal = true
			assert.Equal(t, "42", event.Result)
		}
	}
	assert.True(t, sawFinal)
}
