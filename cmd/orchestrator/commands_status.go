package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// buildStatusCmd creates the "status" command: a thin HTTP client over a
// running orchestrator's GET /health endpoint.
func buildStatusCmd() *cobra.Command {
	var (
		configPath string
		serverAddr string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet health for a running orchestrator",
		Long: `Display the orchestrator's fleet health: active service count,
installed tool count, pending-reconnect count, and per-service status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), configPath, serverAddr, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&serverAddr, "server", "", "Orchestrator HTTP address (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

type statusServiceView struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type statusResponse struct {
	Status           string              `json:"status"`
	ActiveServices   int                 `json:"active_services"`
	ToolCount        int                 `json:"tool_count"`
	PendingReconnect int                 `json:"pending_reconnect"`
	Services         []statusServiceView `json:"services"`
}

func runStatus(ctx context.Context, out io.Writer, configPath, serverAddr string, jsonOutput bool) error {
	baseURL, err := resolveHTTPBaseURL(configPath, serverAddr)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)

	var status statusResponse
	if err := client.getJSON(ctx, "/health", &status); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Fprintln(out, "ORCHESTRATOR STATUS")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Active services:   %d\n", status.ActiveServices)
	fmt.Fprintf(out, "Tools installed:   %d\n", status.ToolCount)
	fmt.Fprintf(out, "Pending reconnect: %d\n", status.PendingReconnect)
	fmt.Fprintln(out)

	if len(status.Services) == 0 {
		fmt.Fprintln(out, "No services attached.")
		return nil
	}
	fmt.Fprintln(out, "Services:")
	for _, svc := range status.Services {
		fmt.Fprintf(out, "  - %s (%s): %s\n", svc.Name, svc.URL, svc.Status)
	}
	return nil
}
