package llm

// Provider defines the interface for LLM backends. The analysis stages
// never touch a vendor SDK directly: they build a Request, hand it to a
// Provider, and validate whatever text comes back before trusting it.

import (
	"context"
)

// Provider is a chat-completion backend
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the model's raw reply
	Complete(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Request contains the input for a single completion call
type Request struct {
	// System frames the task and the output contract
	System string

	// Prompt is the user message carrying chunks or candidate items
	Prompt string

	// Model overrides the configured model when set (provider-specific)
	Model string

	// Temperature overrides the configured sampling temperature when > 0
	Temperature float32

	// MaxTokens limits the response length
	MaxTokens int
}

// Response contains the model's reply, unparsed
type Response struct {
	// Text is the raw completion
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption across prompt and completion
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, API-compatible gateways)
	BaseURL string

	// Timeout per API call
	Timeout int // seconds

	// Temperature is the default sampling temperature
	Temperature float32

	// MaxTokens caps response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Timeout:     60,
		Temperature: 0.1, // analysis wants focused, repeatable output
		MaxTokens:   2000,
	}
}
