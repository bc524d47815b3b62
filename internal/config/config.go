package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/toolfleet/orchestrator/internal/orchestrator"
)

// Config is the persistent configuration for the orchestrator (§6:
// registered servers plus the timing and agent knobs). Unknown fields
// are rejected so a typo in a deployed config file fails loudly at
// startup rather than being silently ignored.
type Config struct {
	Version int                `yaml:"version"`
	Server  ServerConfig       `yaml:"server"`
	Servers []RegisteredServer `yaml:"servers"`
	Timing  TimingConfig       `yaml:"timing"`
	Agent   AgentConfig        `yaml:"agent"`
	LLM     LLMConfig          `yaml:"llm"`
	Logging LoggingConfig      `yaml:"logging"`
	Tracing TracingConfig      `yaml:"tracing"`
}

// ServerConfig configures the HTTP surface (§6 external interfaces).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// RegisteredServer is a tool server attached at startup, before any
// runtime POST /register calls arrive.
type RegisteredServer struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// TimingConfig mirrors orchestrator.Timing, expressed in whole seconds
// the way an operator would write a config file. ToOrchestratorTiming
// converts these into the time.Duration values the orchestrator runs with.
type TimingConfig struct {
	HeartbeatIntervalSeconds    int `yaml:"heartbeat_interval"`
	HeartbeatTimeoutSeconds     int `yaml:"heartbeat_timeout"`
	ReconnectionIntervalSeconds int `yaml:"reconnection_interval"`
	HTTPTimeoutSeconds          int `yaml:"http_timeout"`
}

// ToOrchestratorTiming converts the seconds-based config fields into the
// orchestrator.Timing the Runner actually uses, filling in §6 defaults
// for anything left at zero.
func (t TimingConfig) ToOrchestratorTiming() orchestrator.Timing {
	timing := orchestrator.DefaultTiming()
	if t.HeartbeatIntervalSeconds > 0 {
		timing.HeartbeatInterval = time.Duration(t.HeartbeatIntervalSeconds) * time.Second
	}
	if t.HeartbeatTimeoutSeconds > 0 {
		timing.HeartbeatTimeout = time.Duration(t.HeartbeatTimeoutSeconds) * time.Second
	}
	if t.ReconnectionIntervalSeconds > 0 {
		timing.ReconnectionInterval = time.Duration(t.ReconnectionIntervalSeconds) * time.Second
	}
	if t.HTTPTimeoutSeconds > 0 {
		timing.HTTPTimeout = time.Duration(t.HTTPTimeoutSeconds) * time.Second
	}
	return timing
}

// AgentConfig holds the react_* knobs (§6) that govern the agent loop.
type AgentConfig struct {
	MaxIterations int  `yaml:"react_max_iterations"`
	EnableTrace   bool `yaml:"react_enable_trace"`
}

// Load reads path, expanding $include directives and environment
// variables, then decodes, defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 25
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides lets deployment secrets (API keys) come from the
// environment instead of the config file, following the
// ORCHESTRATOR_-prefixed convention the teacher uses for its own
// secrets (NEXUS_JWT_SECRET and friends).
func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_ANTHROPIC_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "anthropic", value)
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_OPENAI_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "openai", value)
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HTTP_PORT")); value != "" {
		if port, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
}

func setProviderAPIKey(cfg *Config, provider, apiKey string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	entry := cfg.LLM.Providers[provider]
	entry.APIKey = apiKey
	cfg.LLM.Providers[provider] = entry
}

// ConfigValidationError collects every validation failure found while
// checking a decoded Config, instead of stopping at the first one.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Agent.MaxIterations < 0 {
		issues = append(issues, "agent.react_max_iterations must be >= 0")
	}
	if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; cfg.LLM.DefaultProvider != "" && len(cfg.LLM.Providers) > 0 && !ok {
		issues = append(issues, fmt.Sprintf("llm.default_provider %q has no matching entry under llm.providers", cfg.LLM.DefaultProvider))
	}
	for i, s := range cfg.Servers {
		if strings.TrimSpace(s.URL) == "" {
			issues = append(issues, fmt.Sprintf("servers[%d].url must not be empty", i))
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
