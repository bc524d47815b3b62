package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/toolfleet/orchestrator/internal/agent"
	"github.com/toolfleet/orchestrator/internal/agent/providers"
	"github.com/toolfleet/orchestrator/internal/config"
)

// buildProvider selects and constructs the agent.LLMProvider named by
// cfg.LLM.DefaultProvider.
func buildProvider(cfg *config.Config) (agent.LLMProvider, string, error) {
	providerID := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if providerID == "" {
		providerID = "anthropic"
	}

	providerCfg, ok := cfg.LLM.Providers[providerID]
	if !ok {
		return nil, "", fmt.Errorf("llm: provider config missing for %q", providerID)
	}

	switch providerID {
	case "anthropic":
		if providerCfg.APIKey == "" {
			return nil, "", errors.New("llm: anthropic api key is required")
		}
		provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       providerCfg.APIKey,
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
		})
		if err != nil {
			return nil, "", err
		}
		return provider, providerCfg.DefaultModel, nil

	case "openai":
		if providerCfg.APIKey == "" {
			return nil, "", errors.New("llm: openai api key is required")
		}
		return providers.NewOpenAIProvider(providerCfg.APIKey), providerCfg.DefaultModel, nil

	default:
		return nil, "", fmt.Errorf("llm: unknown provider %q", providerID)
	}
}
