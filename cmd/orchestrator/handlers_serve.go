package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolfleet/orchestrator/internal/agent"
	"github.com/toolfleet/orchestrator/internal/api"
	"github.com/toolfleet/orchestrator/internal/config"
	"github.com/toolfleet/orchestrator/internal/observability"
	"github.com/toolfleet/orchestrator/internal/orchestrator"
	"github.com/toolfleet/orchestrator/internal/registry"
	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// runServe implements the serve command: load config, attach the
// statically configured servers, start the background loops and the
// agent driver, then serve HTTP until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(slog.New(newLogHandler(cfg.Logging, debug)))

	slog.Info("starting orchestrator",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"llm_provider", cfg.LLM.DefaultProvider,
		"registered_servers", len(cfg.Servers),
	)

	tracerCfg := observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Attributes:     cfg.Tracing.Attributes,
		EnableInsecure: cfg.Tracing.Insecure,
	}
	if cfg.Tracing.Enabled {
		tracerCfg.Endpoint = cfg.Tracing.Endpoint
	}
	if tracerCfg.ServiceName == "" {
		tracerCfg.ServiceName = "toolfleet-orchestrator"
	}
	_, shutdownTracing := observability.NewTracer(tracerCfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	logger := slog.Default()
	reg := registry.New(logger)
	timing := cfg.Timing.ToOrchestratorTiming()
	orch := orchestrator.New(reg, timing, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, server := range cfg.Servers {
		attachCtx, attachCancel := context.WithTimeout(ctx, 30*time.Second)
		outcome, err := orch.Attach(attachCtx, toolserver.Config{
			URL:     server.URL,
			Name:    server.Name,
			Headers: server.Headers,
		})
		attachCancel()
		if err != nil {
			slog.Warn("failed to attach configured server", "url", server.URL, "error", err)
			continue
		}
		slog.Info("attached configured server", "url", server.URL, "result", outcome)
	}

	orch.StartHeartbeatLoop(ctx)
	orch.StartReconnectLoop(ctx)
	defer orch.StopHeartbeatLoop()
	defer orch.StopReconnectLoop()

	provider, model, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to build llm provider: %w", err)
	}

	driver := agent.NewDriver(provider, reg, agent.DriverConfig{
		Model:            model,
		MaxIterations:    cfg.Agent.MaxIterations,
		HeartbeatTimeout: timing.HeartbeatTimeout,
		EnableTrace:      cfg.Agent.EnableTrace,
	}, logger)

	server := api.New(api.Config{
		Host:             cfg.Server.Host,
		HTTPPort:         cfg.Server.HTTPPort,
		Orchestrator:     orch,
		Driver:           driver,
		HeartbeatTimeout: timing.HeartbeatTimeout,
		Logger:           logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	slog.Info("orchestrator started",
		"http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("orchestrator stopped gracefully")
	return nil
}

// newLogHandler builds the root slog handler from the config file's
// logging knobs, with --debug forcing debug level regardless of
// cfg.Logging.Level.
func newLogHandler(cfg config.LoggingConfig, debug bool) slog.Handler {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}
