package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Tool-fleet orchestrator — registry, attach/detach, and an agent reasoning loop",
		Long: `The orchestrator attaches a fleet of external tool-providing servers,
keeps the registry's view of that fleet current via heartbeat and
reconnection loops, and drives a think/act/observe agent loop over a
language model that dispatches tool calls to the owning server.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRegisterCmd(),
		buildStatusCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	return "orchestrator.yaml"
}
