package config

import (
	"fmt"
	"os"

	"github.com/entrhq/episodic/pkg/llm/openai"
)

// ProviderFlags are the command-line overrides for the LLM provider.
type ProviderFlags struct {
	Model   string
	BaseURL string
	APIKey  string
}

// BuildProvider creates the LLM provider with precedence
// CLI flags > environment > config file > defaults.
func (c Config) BuildProvider(flags ProviderFlags) (*openai.Provider, error) {
	model := flags.Model
	baseURL := flags.BaseURL
	apiKey := flags.APIKey

	keyEnv := c.Analyst.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	if apiKey == "" {
		apiKey = os.Getenv(keyEnv)
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if model == "" {
		model = c.Analyst.Model
	}
	if baseURL == "" {
		baseURL = c.Analyst.BaseURL
	}
	if apiKey == "" {
		apiKey = c.Analyst.APIKey
	}

	if model == "" {
		model = openai.DefaultModel
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required. Set %s, use --api-key, or set analyst.api_key in %s", keyEnv, FileName)
	}

	opts := []openai.ProviderOption{openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if c.Analyst.Temperature > 0 {
		opts = append(opts, openai.WithTemperature(c.Analyst.Temperature))
	}

	provider, err := openai.NewProvider(apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}
