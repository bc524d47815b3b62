// Package registry implements the L2 Service Registry: the single source
// of truth mapping attached tool-server sessions to the tools they own.
// All mutation goes through one mutex-guarded critical section so the
// joint invariants across its five maps never observe a torn state.
package registry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// Tool is the registry's normalized view of a tool-server's tool
// definition: Parameters is always an object-typed JSON Schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ServiceDetails is a snapshot of one attached session's bookkeeping,
// suitable for the /service_info endpoint.
type ServiceDetails struct {
	URL           string    `json:"url"`
	Name          string    `json:"name"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ToolCount     int       `json:"tool_count"`
}

// Registry holds the five joint-invariant maps of §3:
//
//	Sessions:      url -> session
//	Names:         url -> display name
//	LastHeartbeat: url -> last-seen timestamp
//	ToolDef:       tool name -> normalized definition
//	ToolOwner:     tool name -> owning session's url
//
// A single mutex covers all five maps; no registry operation suspends,
// so lock hold times are bounded by a handful of map operations (§5).
type Registry struct {
	mu sync.Mutex

	sessions      map[string]toolserver.Session
	names         map[string]string
	lastHeartbeat map[string]time.Time
	toolDef       map[string]Tool
	toolOwner     map[string]string // tool name -> url

	logger *slog.Logger
}

// New constructs an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:      make(map[string]toolserver.Session),
		names:         make(map[string]string),
		lastHeartbeat: make(map[string]time.Time),
		toolDef:       make(map[string]Tool),
		toolOwner:     make(map[string]string),
		logger:        logger.With("component", "registry"),
	}
}

// Add installs a newly attached session under url, with name as its
// display name and tools as its already-normalized manifest. Tools whose
// name collides with an existing owner are skipped (first writer wins);
// add returns the subset of names actually installed.
//
// Precondition: url must not already be in the registry — callers detach
// first (§4.2). Add does not itself enforce this to keep the critical
// section simple; Attach (§4.3) guarantees the precondition by performing
// its own preflight detach.
func (r *Registry) Add(url, name string, session toolserver.Session, tools []Tool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	installed := make([]string, 0, len(tools))
	for _, t := range tools {
		if existingOwner, exists := r.toolOwner[t.Name]; exists && existingOwner != url {
			r.logger.Warn("tool name collision, skipping newcomer's tool",
				"tool", t.Name, "incoming_url", url, "existing_owner", existingOwner)
			continue
		}
		r.toolDef[t.Name] = t
		r.toolOwner[t.Name] = url
		installed = append(installed, t.Name)
	}

	r.sessions[url] = session
	r.names[url] = name
	r.lastHeartbeat[url] = time.Now()

	return installed
}

// Remove detaches url, atomically dropping its session entry and every
// tool it owns. Idempotent: removing an absent url is a no-op that
// returns (nil, false).
func (r *Registry) Remove(url string) (toolserver.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[url]
	if !ok {
		return nil, false
	}

	delete(r.sessions, url)
	delete(r.names, url)
	delete(r.lastHeartbeat, url)
	for name, owner := range r.toolOwner {
		if owner == url {
			delete(r.toolOwner, name)
			delete(r.toolDef, name)
		}
	}

	return session, true
}

// SessionFor returns the session attached at url, if any.
func (r *Registry) SessionFor(url string) (toolserver.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[url]
	return s, ok
}

// SessionForTool resolves the session owning the named tool, if any.
func (r *Registry) SessionForTool(name string) (toolserver.Session, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	url, ok := r.toolOwner[name]
	if !ok {
		return nil, "", false
	}
	s, ok := r.sessions[url]
	if !ok {
		return nil, "", false
	}
	return s, url, true
}

// AllTools returns a snapshot of every installed tool, safe to range over
// without holding the registry lock.
func (r *Registry) AllTools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Tool, 0, len(r.toolDef))
	for _, t := range r.toolDef {
		out = append(out, t)
	}
	return out
}

// UpdateHealth refreshes url's last-heartbeat timestamp to now. A no-op if
// url is not attached.
func (r *Registry) UpdateHealth(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[url]; !ok {
		return
	}
	r.lastHeartbeat[url] = time.Now()
}

// IsHealthy reports whether url is attached and its last heartbeat is
// within timeout of now.
func (r *Registry) IsHealthy(url string, timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastHeartbeat[url]
	if !ok {
		return false
	}
	return time.Since(last) <= timeout
}

// ExpiredURLs returns every attached url whose last heartbeat is older
// than timeout (or missing entirely), per §4.4 step 2.
func (r *Registry) ExpiredURLs(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var expired []string
	for url := range r.sessions {
		last, ok := r.lastHeartbeat[url]
		if !ok || now.Sub(last) > timeout {
			expired = append(expired, url)
		}
	}
	return expired
}

// AllServiceURLs returns a snapshot of every currently attached url.
func (r *Registry) AllServiceURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for url := range r.sessions {
		out = append(out, url)
	}
	return out
}

// ServiceDetails returns bookkeeping for one attached url, if present.
func (r *Registry) ServiceDetails(url string) (ServiceDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[url]; !ok {
		return ServiceDetails{}, false
	}
	count := 0
	for _, owner := range r.toolOwner {
		if owner == url {
			count++
		}
	}
	return ServiceDetails{
		URL:           url,
		Name:          r.names[url],
		LastHeartbeat: r.lastHeartbeat[url],
		ToolCount:     count,
	}, true
}

// SessionCount returns the number of currently attached sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ToolCount returns the number of currently installed tools.
func (r *Registry) ToolCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toolDef)
}
