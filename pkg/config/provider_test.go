package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/episodic/pkg/llm/openai"
)

func TestBuildProvider(t *testing.T) {
	tests := []struct {
		name          string
		flags         ProviderFlags
		file          AnalystConfig
		envAPIKey     string
		envBaseURL    string
		expectError   bool
		expectedModel string
		expectedKey   string
		expectedURL   string
	}{
		{
			name:          "CLI flags take precedence over env and file",
			flags:         ProviderFlags{Model: "gpt-4", BaseURL: "https://cli.example.com", APIKey: "cli-key"},
			file:          AnalystConfig{Model: "file-model", BaseURL: "https://file.example.com", APIKey: "file-key"},
			envAPIKey:     "env-key",
			envBaseURL:    "https://env.example.com",
			expectedModel: "gpt-4",
			expectedKey:   "cli-key",
			expectedURL:   "https://cli.example.com",
		},
		{
			name:          "Environment wins over config file",
			file:          AnalystConfig{Model: "file-model", BaseURL: "https://file.example.com", APIKey: "file-key"},
			envAPIKey:     "env-key",
			envBaseURL:    "https://env.example.com",
			expectedModel: "file-model",
			expectedKey:   "env-key",
			expectedURL:   "https://env.example.com",
		},
		{
			name:          "Config file used when nothing else is set",
			file:          AnalystConfig{Model: "file-model", BaseURL: "https://file.example.com", APIKey: "file-key"},
			expectedModel: "file-model",
			expectedKey:   "file-key",
			expectedURL:   "https://file.example.com",
		},
		{
			name:          "Default model when unset",
			flags:         ProviderFlags{APIKey: "test-key"},
			expectedModel: openai.DefaultModel,
			expectedKey:   "test-key",
			expectedURL:   openai.DefaultBaseURL,
		},
		{
			name:        "Error when no API key provided",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(DefaultAPIKeyEnv, tt.envAPIKey)
			t.Setenv("OPENAI_BASE_URL", tt.envBaseURL)

			cfg := DefaultConfig()
			tt.file.Kind = AnalystLLM
			tt.file.APIKeyEnv = DefaultAPIKeyEnv
			cfg.Analyst = tt.file

			provider, err := cfg.BuildProvider(tt.flags)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedModel, provider.GetModel())
			assert.Equal(t, tt.expectedKey, provider.GetAPIKey())
			assert.Equal(t, tt.expectedURL, provider.GetBaseURL())
		})
	}
}

func TestBuildProviderCustomKeyEnv(t *testing.T) {
	t.Setenv(DefaultAPIKeyEnv, "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("EPISODIC_TEST_KEY", "custom-key")

	cfg := DefaultConfig()
	cfg.Analyst.APIKeyEnv = "EPISODIC_TEST_KEY"

	provider, err := cfg.BuildProvider(ProviderFlags{})
	require.NoError(t, err)
	assert.Equal(t, "custom-key", provider.GetAPIKey())
}
