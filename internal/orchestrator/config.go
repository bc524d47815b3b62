package orchestrator

import "time"

// Timing holds the §6 timing configuration knobs, all expressed as
// time.Duration internally though the config file (see internal/config)
// stores them in seconds.
type Timing struct {
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	ReconnectionInterval time.Duration
	HTTPTimeout          time.Duration
}

// DefaultTiming returns the §6 defaults: heartbeat_interval=60s,
// heartbeat_timeout=180s, reconnection_interval=60s, http_timeout=10s.
func DefaultTiming() Timing {
	return Timing{
		HeartbeatInterval:    60 * time.Second,
		HeartbeatTimeout:     180 * time.Second,
		ReconnectionInterval: 60 * time.Second,
		HTTPTimeout:          10 * time.Second,
	}
}

const (
	// attachPerPhaseBudget bounds each connect+initialize attempt and,
	// separately, the list_tools call, per §4.3 step 2-4.
	attachPerPhaseBudget = 30 * time.Second
	// attachMaxAttempts is the bounded connect retry count, per §4.3 step 2.
	attachMaxAttempts = 3
)
