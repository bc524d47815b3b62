// Package toolserver implements the client side of the tool-server session
// protocol: a thin capability over a long-lived SSE transport offering
// initialize, list_tools and call_tool.
package toolserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config describes how to reach and identify a tool server.
type Config struct {
	URL     string            `yaml:"url" json:"url"`
	Name    string            `yaml:"name" json:"name,omitempty"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout" json:"timeout,omitempty"`
}

// Validate performs basic sanity checks on the config before an attach attempt.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("server URL must start with http:// or https://")
	}
	return nil
}

// Tool is a single tool definition as reported by list_tools.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ServerInfo identifies the remote tool server, returned by initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is the decoded result of the initialize call.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// ListToolsResult is the decoded result of the list_tools call.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the request payload for call_tool.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ContentBlock is one element of a tool call result's content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the decoded result of the call_tool call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// NormalizeParameters enforces the §4.2 contract: the registry must always
// see an object-typed JSON Schema. If raw isn't already `{"type":"object",...}`
// it is wrapped as one, with the original value demoted to "properties" and
// its top-level keys (if any) promoted to "required".
func NormalizeParameters(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == "object" {
		var asObject map[string]json.RawMessage
		if err := json.Unmarshal(raw, &asObject); err == nil {
			return raw
		}
	}

	var asMap map[string]json.RawMessage
	required := []string{}
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for k := range asMap {
			required = append(required, k)
		}
	}

	wrapped := struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required,omitempty"`
	}{
		Type:       "object",
		Properties: asMap,
		Required:   required,
	}
	out, err := json.Marshal(wrapped)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return out
}
