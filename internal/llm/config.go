package llm

import (
	"fmt"
	"os"
	"time"
)

// ProviderType names a supported hosted chat-completion API.
type ProviderType string

const (
	ProviderClaude ProviderType = "claude"
	ProviderOpenAI ProviderType = "openai"
)

// ProviderConfig holds the configuration for a single LLM provider/model
// pair, as bound by one entry of config.AIConfig.Providers.
type ProviderConfig struct {
	Type       ProviderType
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Validate checks that a provider configuration is usable.
func (p *ProviderConfig) Validate() error {
	if p.Type != ProviderClaude && p.Type != ProviderOpenAI {
		return fmt.Errorf("invalid provider type: %s", p.Type)
	}
	if p.Model == "" {
		return fmt.Errorf("model must be specified")
	}
	if p.APIKey == "" {
		return fmt.Errorf("API key must be provided")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must be non-negative")
	}
	return nil
}

// String returns a human-readable identifier for the provider.
func (p *ProviderConfig) String() string {
	return fmt.Sprintf("%s:%s", p.Type, p.Model)
}

// APIKeyEnvVar returns the environment variable pickls reads the provider's
// API key from.
func APIKeyEnvVar(t ProviderType) string {
	switch t {
	case ProviderClaude:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// FromEnv resolves name/model into a ProviderConfig, reading the API key
// from the provider's conventional environment variable.
func FromEnv(name, model string, timeout time.Duration, maxRetries int) (ProviderConfig, error) {
	t := ProviderType(name)
	envVar := APIKeyEnvVar(t)
	if envVar == "" {
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", name)
	}
	return ProviderConfig{
		Type:       t,
		Model:      model,
		APIKey:     os.Getenv(envVar),
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}, nil
}
