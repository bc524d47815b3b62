package api

import (
	"encoding/json"
	"net/http"

	"github.com/toolfleet/orchestrator/internal/orchestrator"
)

// registerRequest is the §6 POST /register body.
type registerRequest struct {
	URL     string            `json:"url"`
	Name    string            `json:"name,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// handleRegister attaches a new tool server. A connect-class failure
// (Unreachable/BadGateway) still returns 502 but also leaves the URL in
// the orchestrator's pending-reconnect set, per §6 and
// orchestrator.Register's doc comment.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	outcome := s.orch.Register(r.Context(), orchestrator.ServerRegistration{
		URL:     req.URL,
		Name:    req.Name,
		Headers: req.Headers,
	})

	if outcome.Err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": outcome.Message})
		return
	}

	switch outcome.Err.Kind {
	case orchestrator.AttachUnreachable, orchestrator.AttachBadGateway:
		writeError(w, http.StatusBadGateway, outcome.Err.Error())
	default:
		writeError(w, http.StatusInternalServerError, outcome.Err.Error())
	}
}
