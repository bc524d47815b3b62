package orchestrator

import (
	"context"

	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// ServerRegistration is the orchestrator-facing shape of a /register
// request body (§6): just enough to build a toolserver.Config.
type ServerRegistration struct {
	URL     string
	Name    string
	Headers map[string]string
}

func (r ServerRegistration) toToolServerConfig() toolserver.Config {
	return toolserver.Config{URL: r.URL, Name: r.Name, Headers: r.Headers}
}

// RegisterOutcome is the result the /register HTTP handler (§6) needs to
// pick a status code: a human message on success, or an AttachError whose
// Kind drives the response (502 for Unreachable/BadGateway, which are
// also queued in R for the reconnection loop; 500 otherwise, with no
// auto-retry).
type RegisterOutcome struct {
	Message string
	Err     *AttachError
}

// Register attaches a new server and, on a connect-class failure, adds
// it to the pending-reconnect set so the background loop keeps trying
// without the caller needing to poll. This is the orchestration glue
// behind the §6 POST /register endpoint; internal/api calls this rather
// than Attach directly so the pending-set policy lives in one place.
func (o *Orchestrator) Register(ctx context.Context, urlConfig ServerRegistration) RegisterOutcome {
	cfg := urlConfig.toToolServerConfig()

	msg, err := o.Attach(ctx, cfg)
	if err == nil {
		return RegisterOutcome{Message: msg}
	}

	var attachErr *AttachError
	if ae, ok := err.(*AttachError); ok {
		attachErr = ae
	} else {
		attachErr = &AttachError{Kind: AttachSetup, Cause: err}
	}

	if attachErr.ShouldPendReconnect() {
		o.pending.Add(cfg.URL)
		o.mu.Lock()
		o.configs[cfg.URL] = cfg
		o.names[cfg.URL] = cfg.Name
		o.mu.Unlock()
	}

	return RegisterOutcome{Err: attachErr}
}
