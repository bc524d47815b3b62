package config

// LLMConfig selects and configures the LLMProvider backing the agent
// loop (§4.6a: AnthropicProvider / OpenAIProvider).
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures a single named provider entry. Not every
// field applies to every provider (the openai provider ignores base_url);
// unused fields are simply left zero.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}
