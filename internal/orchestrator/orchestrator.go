// Package orchestrator implements the L3 Orchestrator: attach/detach of
// tool-server sessions, and the two background loops (heartbeat,
// reconnection) that keep the registry's view of the fleet current.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/toolfleet/orchestrator/internal/backoff"
	"github.com/toolfleet/orchestrator/internal/registry"
	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// transportFactory builds the wire-level Transport for a server config.
// Overridable in tests to avoid any real network I/O.
type transportFactory func(cfg toolserver.Config, logger *slog.Logger) toolserver.Transport

func defaultTransportFactory(cfg toolserver.Config, logger *slog.Logger) toolserver.Transport {
	return toolserver.NewSSETransport(cfg, logger)
}

// Orchestrator owns the registry, the pending-reconnect set, and the two
// background loops. It is the only component that mutates the registry
// upward (Attach) or downward except via heartbeat expiry (which also
// routes through Detach).
type Orchestrator struct {
	reg     *registry.Registry
	pending *pendingSet
	timing  Timing
	logger  *slog.Logger
	tracer  trace.Tracer

	httpClient   *http.Client
	newTransport transportFactory

	mu       sync.Mutex
	configs  map[string]toolserver.Config // url -> last-known attach config, for reconnection
	names    map[string]string            // url -> display name, for reconnection

	heartbeatLoop  *loopRunner
	reconnectLoop  *loopRunner
}

// New constructs an Orchestrator around reg with the given timing. A nil
// logger falls back to slog.Default(); the OTel tracer is resolved from
// the global provider (a no-op tracer when none is configured, per the
// ambient tracing stance).
func New(reg *registry.Registry, timing Timing, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		reg:          reg,
		pending:      newPendingSet(),
		timing:       timing,
		logger:       logger.With("component", "orchestrator"),
		tracer:       otel.Tracer("toolfleet/orchestrator"),
		httpClient:   &http.Client{Timeout: timing.HTTPTimeout},
		newTransport: defaultTransportFactory,
		configs:      make(map[string]toolserver.Config),
		names:        make(map[string]string),
	}
}

// PendingReconnectURLs exposes a snapshot of R, for status/debug surfaces.
func (o *Orchestrator) PendingReconnectURLs() []string {
	return o.pending.Snapshot()
}

// Registry exposes the underlying registry for read-only query paths
// (the agent driver, the HTTP query handlers).
func (o *Orchestrator) Registry() *registry.Registry {
	return o.reg
}

// Attach performs the §4.3 attach procedure: preflight detach, bounded
// connect retry, initialize, list_tools, normalize-and-install, and
// pending-set reconciliation. name, if empty, defaults to the URL.
func (o *Orchestrator) Attach(ctx context.Context, cfg toolserver.Config) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.attach")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return "", &AttachError{Kind: AttachSetup, Cause: err}
	}

	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}

	// Step 1: preflight — idempotent replacement if already attached.
	if _, ok := o.reg.SessionFor(cfg.URL); ok {
		o.Detach(cfg.URL)
	}

	// Step 2: open stream with bounded retry, connect-class failures only.
	transport := o.newTransport(cfg, o.logger)
	session := toolserver.NewSession(transport, o.logger)

	var terminal error
	result, err := backoff.RetryWithBackoff(ctx, connectBackoffPolicy(), attachMaxAttempts,
		func(attempt int) (toolserver.ServerInfo, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, attachPerPhaseBudget)
			defer cancel()
			info, err := session.Initialize(attemptCtx)
			if err != nil {
				if !isConnectClassFailure(err) {
					// Not retryable: record it as a terminal failure and
					// report success so RetryWithBackoff's attempt loop
					// stops here; the failure is classified below.
					terminal = backoffTerminal{err}
					return toolserver.ServerInfo{}, nil
				}
				return toolserver.ServerInfo{}, err
			}
			return info, nil
		})

	if terminal != nil {
		return "", classifyAttachFailure(terminal, terminal)
	}
	if err != nil {
		return "", classifyAttachFailure(err, result.LastError)
	}

	// Step 3 is folded into step 2 above (initialize is part of Connect's
	// retried attempt, matching §4.3's framing of connect+initialize as
	// the retried phase — see DESIGN.md for the Open Question resolution).

	// Step 4: list tools, bounded, not retried.
	listCtx, cancel := context.WithTimeout(ctx, attachPerPhaseBudget)
	tools, err := session.ListTools(listCtx)
	cancel()
	if err != nil {
		session.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &AttachError{Kind: AttachProtocolTimeout, Cause: err}
		}
		return "", &AttachError{Kind: AttachSetup, Cause: err}
	}

	// Step 5: normalize & install (normalization already happened inside
	// ListTools per §4.2a/§4.2; convert to the registry's Tool shape and
	// commit).
	installed := o.reg.Add(cfg.URL, name, session, registry.FromToolServerTools(tools))

	// Step 6: reconcile pending set.
	o.pending.Remove(cfg.URL)

	o.mu.Lock()
	o.configs[cfg.URL] = cfg
	o.names[cfg.URL] = name
	o.mu.Unlock()

	o.logger.Info("attached tool server", "url", cfg.URL, "name", name,
		"tools_installed", len(installed), "tools_reported", len(tools))

	return fmt.Sprintf("attached %q with %d tool(s)", name, len(installed)), nil
}

// Detach removes url from the registry (§4.3: routing only, the
// transport itself is torn down best-effort and does not block a
// replacement attach).
func (o *Orchestrator) Detach(url string) {
	session, ok := o.reg.Remove(url)
	if !ok {
		return
	}
	o.logger.Info("detached tool server", "url", url)
	go func() {
		if err := session.Close(); err != nil {
			o.logger.Warn("error closing detached session", "url", url, "error", err)
		}
	}()
}

// backoffTerminal marks an error as non-retryable so the retry loop can
// distinguish "connect failed, try again" from "initialize failed after
// connecting, stop".
type backoffTerminal struct{ err error }

func (b backoffTerminal) Error() string { return b.err.Error() }
func (b backoffTerminal) Unwrap() error { return b.err }

func connectBackoffPolicy() backoff.BackoffPolicy {
	// Fixed 1-second backoff between connect attempts, per §4.3 step 2.
	return backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 1000, Factor: 1, Jitter: 0}
}

// isConnectClassFailure reports whether err looks like a DNS/TCP-connect
// class failure as opposed to a protocol or HTTP-status failure. This is
// a best-effort classification over the error's rendered text, since the
// stdlib surfaces connection failures as *net.OpError / *url.Error wraps
// without a single stable sentinel.
func isConnectClassFailure(err error) bool {
	var terminal backoffTerminal
	if errors.As(err, &terminal) {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "returned status"), strings.Contains(msg, "bad gateway"):
		return false
	case strings.Contains(msg, "no such host"):
		return true
	case strings.Contains(msg, "connection refused"):
		return true
	case strings.Contains(msg, "connect:"):
		return true
	case strings.Contains(msg, "i/o timeout") && strings.Contains(msg, "dial"):
		return true
	case strings.Contains(msg, "timed out waiting for tool server endpoint"):
		return true
	default:
		return false
	}
}

func classifyAttachFailure(loopErr error, lastErr error) *AttachError {
	cause := lastErr
	if cause == nil {
		cause = loopErr
	}

	var terminal backoffTerminal
	if errors.As(cause, &terminal) {
		cause = terminal.err
	}

	msg := strings.ToLower(cause.Error())
	switch {
	case isConnectClassFailure(cause):
		return &AttachError{Kind: AttachUnreachable, Cause: cause}
	case errors.Is(cause, context.DeadlineExceeded):
		return &AttachError{Kind: AttachProtocolTimeout, Cause: cause}
	case strings.Contains(msg, "bad gateway"):
		return &AttachError{Kind: AttachBadGateway, Cause: cause}
	case strings.Contains(msg, "returned status"):
		return &AttachError{Kind: AttachHTTPStatus, Cause: cause}
	default:
		return &AttachError{Kind: AttachSetup, Cause: cause}
	}
}

// probeHealth issues one bounded GET to url's /health endpoint, per §4.4
// step 4.
func (o *Orchestrator) probeHealth(ctx context.Context, url string) error {
	healthURL := strings.TrimRight(url, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// configFor returns the last-known attach config for url, used by the
// reconnection loop to retry an attach without the caller re-supplying it.
func (o *Orchestrator) configFor(url string) (toolserver.Config, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cfg, ok := o.configs[url]
	return cfg, ok
}
