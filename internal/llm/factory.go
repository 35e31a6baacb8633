package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/evidentlabs/beacon/internal/config"
)

// NewProvider creates an LLM provider based on configuration. API keys left
// empty in config are resolved from the environment: BEACON_OPENAI_API_KEY
// falls back to OPENAI_API_KEY, and likewise for Anthropic.
func NewProvider(cfg Config) (Provider, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = firstEnv("BEACON_OPENAI_API_KEY", "OPENAI_API_KEY")
		}
		return NewOpenAIProvider(cfg)

	case "anthropic", "claude":
		if cfg.APIKey == "" {
			cfg.APIKey = firstEnv("BEACON_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
		}
		return NewAnthropicProvider(cfg)

	case "ollama":
		return NewOllamaProvider(cfg)

	case "":
		return nil, fmt.Errorf("no LLM provider configured")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", cfg.Provider)
	}
}

// ConfigFromModel converts the model section of the runtime configuration
// into a provider Config.
func ConfigFromModel(m config.Model) Config {
	return Config{
		Provider:    m.Provider,
		Model:       m.Name,
		BaseURL:     m.BaseURL,
		Timeout:     m.TimeoutSeconds,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		HTTPProxy:   m.HTTPProxy,
		HTTPSProxy:  m.HTTPSProxy,
		NoProxy:     m.NoProxy,
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}
