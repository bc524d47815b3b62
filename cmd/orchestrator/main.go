// Package main provides the CLI entry point for the tool-fleet
// orchestrator: attach/detach of external tool-providing servers, and an
// agent reasoning loop that drives them from a query.
//
// # Basic usage
//
//	orchestrator serve --config orchestrator.yaml
//	orchestrator register --url http://localhost:9001/sse --name search
//	orchestrator status --config orchestrator.yaml
package main

import (
	"log/slog"
	"os"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}
