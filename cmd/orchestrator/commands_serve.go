package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the orchestrator:
// the HTTP surface, the heartbeat loop, and the reconnection loop.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator server",
		Long: `Start the orchestrator server.

The server will:
1. Load configuration from the specified file (or orchestrator.yaml)
2. Attach every server listed under servers: in the config
3. Start the heartbeat and reconnection background loops
4. Build the agent driver against the configured LLM provider
5. Start the HTTP server for /register, /query, /health and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  orchestrator serve

  # Start with custom config
  orchestrator serve --config /etc/orchestrator/production.yaml

  # Start with debug logging
  orchestrator serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}
