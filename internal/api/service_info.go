package api

import "net/http"

// serviceInfoResponse augments registry.ServiceDetails with the same
// healthy/unhealthy classification /health reports per service.
type serviceInfoResponse struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	LastHeartbeat string `json:"last_heartbeat"`
	ToolCount     int    `json:"tool_count"`
	Status        string `json:"status"`
}

// handleServiceInfo reports bookkeeping for one attached server, per §6
// GET /service_info?url=….
func (s *Server) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	details, ok := s.orch.Registry().ServiceDetails(url)
	if !ok {
		writeError(w, http.StatusNotFound, "no such service")
		return
	}

	status := "unhealthy"
	if s.orch.Registry().IsHealthy(url, s.heartbeatTimeout) {
		status = "healthy"
	}

	writeJSON(w, http.StatusOK, serviceInfoResponse{
		URL:           details.URL,
		Name:          details.Name,
		LastHeartbeat: details.LastHeartbeat.Format(timeFormat),
		ToolCount:     details.ToolCount,
		Status:        status,
	})
}
