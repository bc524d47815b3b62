package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/toolfleet/orchestrator/internal/agent"
)

// handleQueryStream serves one agent step per server-sent event, ending
// with a terminal is_final event, per §6 POST/GET /query_stream.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var query string
	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query().Get("query")
	case http.MethodPost:
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		query = req.Query
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
		return
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event agent.StepEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("query_stream: event encode failed", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	_, err := s.driver.RunStepStream(r.Context(), query, send)
	if err != nil {
		send(agent.StepEvent{Type: "error", Content: err.Error(), IsFinal: true})
	}
}
