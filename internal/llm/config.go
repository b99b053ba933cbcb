package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds LLM provider configuration.
type Config struct {
	// Provider selects the backend: "gemini", "openai", "anthropic" or "mock".
	Provider string

	// APIKey is the credential for the selected provider.
	APIKey string

	// Model is a model ID or one of the friendly names the provider knows.
	// Empty selects the provider default.
	Model string

	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	BaseURL string

	// Timeout bounds a single call. Zero means no timeout.
	Timeout time.Duration

	// MaxTokens caps each reply. Zero leaves the provider default.
	MaxTokens int
}

var defaultModels = map[string]string{
	"gemini":    "gemini-2.5-flash",
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-haiku",
	"mock":      "mock",
}

var keyEnvVars = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// DefaultConfig returns a Config for the Gemini provider.
func DefaultConfig() Config {
	return Config{
		Provider: "gemini",
		Model:    defaultModels["gemini"],
	}
}

// WithEnvKey fills an empty APIKey from the provider's conventional
// environment variables.
func (c Config) WithEnvKey() Config {
	if c.APIKey != "" {
		return c
	}
	for _, name := range keyEnvVars[c.Provider] {
		if k := os.Getenv(name); k != "" {
			c.APIKey = k
			return c
		}
	}
	return c
}

// ModelOrDefault returns the configured model or the provider default.
func (c Config) ModelOrDefault() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[c.Provider]
}

// Validate checks that the selected provider has its required credential.
func (c Config) Validate() error {
	switch c.Provider {
	case "gemini", "openai", "anthropic":
		if c.APIKey == "" {
			return fmt.Errorf("an API key is required for the %s provider: set --llm-key or %s",
				c.Provider, keyEnvVars[c.Provider][0])
		}
	case "mock":
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("LLM timeout must not be negative")
	}
	return nil
}

// resolveModel maps a friendly model name to a provider model ID.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
