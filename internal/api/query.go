package api

import (
	"encoding/json"
	"net/http"

	"github.com/toolfleet/orchestrator/internal/agent"
)

// queryRequest is the §6 POST /query body. Mode is accepted for
// compatibility but the driver only implements the react loop; any
// non-empty mode other than "react"/"standard" is rejected.
type queryRequest struct {
	Query        string `json:"query"`
	Mode         string `json:"mode,omitempty"`
	IncludeTrace bool   `json:"include_trace,omitempty"`
}

// queryResponse is the §6 200 payload: {result, execution_trace?}.
type queryResponse struct {
	Result         string    `json:"result"`
	ExecutionTrace []traceStep `json:"execution_trace,omitempty"`
}

type traceStep struct {
	Type   string          `json:"type"`
	Tool   string          `json:"tool,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result string          `json:"result,omitempty"`
	Content string         `json:"content,omitempty"`
}

// handleQuery runs one query to completion and returns the final answer,
// per §6 POST /query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	switch req.Mode {
	case "", "react", "standard":
	default:
		writeError(w, http.StatusBadRequest, "mode must be \"react\" or \"standard\"")
		return
	}

	if !req.IncludeTrace {
		result, err := s.driver.Run(r.Context(), req.Query)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, queryResponse{Result: result})
		return
	}

	var steps []traceStep
	result, err := s.driver.RunStepStream(r.Context(), req.Query, func(e agent.StepEvent) {
		switch e.Type {
		case "thinking":
			if e.Status == "complete" {
				steps = append(steps, traceStep{Type: "thinking", Content: e.Content})
			}
		case "tool_call":
			if e.Status == "complete" {
				steps = append(steps, traceStep{Type: "tool_call", Tool: e.Tool, Params: e.Params, Result: e.Result})
			}
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Result: result, ExecutionTrace: steps})
}
