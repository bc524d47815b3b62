package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// buildRegisterCmd creates the "register" command: a thin HTTP client
// over a running orchestrator's POST /register endpoint. Resolves the
// base URL from --server or the config file, then calls through apiClient.
func buildRegisterCmd() *cobra.Command {
	var (
		configPath string
		serverAddr string
		url        string
		name       string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Attach a tool server to a running orchestrator",
		Long: `Register a tool server with a running orchestrator over its
HTTP surface (POST /register). The orchestrator must already be serving;
use 'orchestrator serve' to start it, or pre-list the server under
servers: in the config file to have it attached automatically at startup.`,
		Example: `  orchestrator register --url http://localhost:9001/sse --name search
  orchestrator register --server localhost:8080 --url http://localhost:9002/sse`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd.Context(), cmd.OutOrStdout(), configPath, serverAddr, url, name)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&serverAddr, "server", "", "Orchestrator HTTP address (default: from config)")
	cmd.Flags().StringVar(&url, "url", "", "Tool server URL to attach (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the tool server (default: the URL)")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

type registerResponse struct {
	Message string `json:"message"`
}

func runRegister(ctx context.Context, out io.Writer, configPath, serverAddr, url, name string) error {
	baseURL, err := resolveHTTPBaseURL(configPath, serverAddr)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)

	var resp registerResponse
	if err := client.postJSON(ctx, "/register", map[string]string{"url": url, "name": name}, &resp); err != nil {
		return err
	}

	fmt.Fprintln(out, resp.Message)
	return nil
}
