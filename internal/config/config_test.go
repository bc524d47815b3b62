package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesDefaultProviderHasEntry(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesServerURLRequired(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: empty
    url: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "servers[0].url") {
		t.Fatalf("expected servers[0].url error, got %v", err)
	}
}

func TestLoadValidatesMaxIterations(t *testing.T) {
	path := writeConfig(t, `
agent:
  react_max_iterations: -1
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "react_max_iterations") {
		t.Fatalf("expected react_max_iterations error, got %v", err)
	}
}

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: search
    url: http://localhost:9001/sse
llm:
  default_provider: anthropic
  providers:
    anthropic:
      default_model: claude-sonnet-4-20250514
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected default host, got %q", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http_port, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Agent.MaxIterations != 25 {
		t.Fatalf("expected default react_max_iterations, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version defaulted to current, got %d", cfg.Version)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].URL != "http://localhost:9001/sse" {
		t.Fatalf("expected one registered server, got %+v", cfg.Servers)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ORCHESTRATOR_ANTHROPIC_API_KEY", "sk-from-env")
	t.Setenv("ORCHESTRATOR_HTTP_PORT", "9999")

	path := writeConfig(t, `
server:
  http_port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Fatalf("expected http_port override, got %d", cfg.Server.HTTPPort)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-from-env" {
		t.Fatalf("expected anthropic api_key override, got %+v", cfg.LLM.Providers)
	}
}

func TestTimingConfigToOrchestratorTimingHonorsOverrides(t *testing.T) {
	path := writeConfig(t, `
timing:
  heartbeat_interval: 30
  heartbeat_timeout: 90
  reconnection_interval: 15
  http_timeout: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	timing := cfg.Timing.ToOrchestratorTiming()
	if timing.HeartbeatInterval.Seconds() != 30 {
		t.Fatalf("expected heartbeat_interval override, got %v", timing.HeartbeatInterval)
	}
	if timing.HeartbeatTimeout.Seconds() != 90 {
		t.Fatalf("expected heartbeat_timeout override, got %v", timing.HeartbeatTimeout)
	}
	if timing.ReconnectionInterval.Seconds() != 15 {
		t.Fatalf("expected reconnection_interval override, got %v", timing.ReconnectionInterval)
	}
	if timing.HTTPTimeout.Seconds() != 5 {
		t.Fatalf("expected http_timeout override, got %v", timing.HTTPTimeout)
	}
}

func TestTimingConfigToOrchestratorTimingDefaultsUnsetFields(t *testing.T) {
	var cfg TimingConfig
	timing := cfg.ToOrchestratorTiming()
	if timing.HeartbeatInterval.Seconds() != 60 {
		t.Fatalf("expected default heartbeat_interval, got %v", timing.HeartbeatInterval)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
