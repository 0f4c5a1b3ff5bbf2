package llm

import "fmt"

const defaultDeepSeekBaseURL = "https://api.deepseek.com"

// DeepSeekProvider wraps OpenAIProvider with DeepSeek-specific defaults.
// DeepSeek exposes an OpenAI-compatible API, so the underlying SDK is reused.
type DeepSeekProvider struct {
	*OpenAIProvider
}

// NewDeepSeekProvider creates a provider targeting the DeepSeek API.
func NewDeepSeekProvider(cfg DeepSeekConfig) (*DeepSeekProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDeepSeekBaseURL
	}

	inner, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, err
	}
	inner.jsonObjectMode = true

	return &DeepSeekProvider{OpenAIProvider: inner}, nil
}
