package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "anthropic", "openai", "gemini", "deepseek", "openrouter", "mock"
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	DeepSeek   DeepSeekConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout is the maximum duration for a single LLM request
	// (including retries). Default: 30s.
	Timeout time.Duration
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string
	Model  string // Primary (fast) model. Default: "claude-haiku"
	Strong string // Escalation model. Default: "claude-sonnet"
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string // Default: "gpt-4o-mini"
	Strong  string // Default: "gpt-4o"
	BaseURL string // Optional. Override for OpenAI-compatible APIs.
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string
	Model  string // Default: "gemini-flash"
	Strong string // Default: "gemini-pro"
}

// DeepSeekConfig holds DeepSeek-specific configuration.
// DeepSeek exposes an OpenAI-compatible API; the chat model serves the
// primary tier and the reasoner model serves escalations.
type DeepSeekConfig struct {
	APIKey  string
	Model   string // Default: "deepseek-chat"
	Strong  string // Default: "deepseek-reasoner"
	BaseURL string // Default: "https://api.deepseek.com"
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey  string
	Model   string // Default: "google/gemini-2.0-flash-exp"
	Strong  string // Defaults to Model when unset.
	BaseURL string // Default: "https://openrouter.ai/api/v1"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "deepseek",
		Anthropic: AnthropicConfig{
			Model:  "claude-haiku",
			Strong: "claude-sonnet",
		},
		OpenAI: OpenAIConfig{
			Model:  "gpt-4o-mini",
			Strong: "gpt-4o",
		},
		Gemini: GeminiConfig{
			Model:  "gemini-flash",
			Strong: "gemini-pro",
		},
		DeepSeek: DeepSeekConfig{
			Model:  "deepseek-chat",
			Strong: "deepseek-reasoner",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.0-flash-exp",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 30 * time.Second,
	}
}

// ConfigFromEnv builds a Config from environment variables, falling back
// to defaults for unset values.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if p := os.Getenv("SHORTMARK_LLM_PROVIDER"); p != "" {
		cfg.Provider = p
	}

	if k := os.Getenv("SHORTMARK_ANTHROPIC_API_KEY"); k != "" {
		cfg.Anthropic.APIKey = k
	}
	if m := os.Getenv("SHORTMARK_ANTHROPIC_MODEL"); m != "" {
		cfg.Anthropic.Model = m
	}
	if m := os.Getenv("SHORTMARK_ANTHROPIC_STRONG_MODEL"); m != "" {
		cfg.Anthropic.Strong = m
	}

	if k := os.Getenv("SHORTMARK_OPENAI_API_KEY"); k != "" {
		cfg.OpenAI.APIKey = k
	}
	if m := os.Getenv("SHORTMARK_OPENAI_MODEL"); m != "" {
		cfg.OpenAI.Model = m
	}
	if m := os.Getenv("SHORTMARK_OPENAI_STRONG_MODEL"); m != "" {
		cfg.OpenAI.Strong = m
	}
	if u := os.Getenv("SHORTMARK_OPENAI_BASE_URL"); u != "" {
		cfg.OpenAI.BaseURL = u
	}

	if k := os.Getenv("SHORTMARK_GEMINI_API_KEY"); k != "" {
		cfg.Gemini.APIKey = k
	}
	if m := os.Getenv("SHORTMARK_GEMINI_MODEL"); m != "" {
		cfg.Gemini.Model = m
	}
	if m := os.Getenv("SHORTMARK_GEMINI_STRONG_MODEL"); m != "" {
		cfg.Gemini.Strong = m
	}

	if k := os.Getenv("SHORTMARK_DEEPSEEK_API_KEY"); k != "" {
		cfg.DeepSeek.APIKey = k
	}
	if m := os.Getenv("SHORTMARK_DEEPSEEK_MODEL"); m != "" {
		cfg.DeepSeek.Model = m
	}
	if m := os.Getenv("SHORTMARK_DEEPSEEK_STRONG_MODEL"); m != "" {
		cfg.DeepSeek.Strong = m
	}
	if u := os.Getenv("SHORTMARK_DEEPSEEK_BASE_URL"); u != "" {
		cfg.DeepSeek.BaseURL = u
	}

	if k := os.Getenv("SHORTMARK_OPENROUTER_API_KEY"); k != "" {
		cfg.OpenRouter.APIKey = k
	}
	if m := os.Getenv("SHORTMARK_OPENROUTER_MODEL"); m != "" {
		cfg.OpenRouter.Model = m
	}

	return cfg
}

// DiscoverConfig probes standard API key env vars in priority order
// (DeepSeek → Gemini → OpenAI → Anthropic → OpenRouter) and returns a
// Config for the first provider whose key is found.
// Returns (Config{}, false) if none found.
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()

	if k := os.Getenv("DEEPSEEK_API_KEY"); k != "" {
		cfg.Provider = "deepseek"
		cfg.DeepSeek.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		cfg.Provider = "gemini"
		cfg.Gemini.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		cfg.Provider = "openai"
		cfg.OpenAI.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		cfg.Provider = "anthropic"
		cfg.Anthropic.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENROUTER_API_KEY"); k != "" {
		cfg.Provider = "openrouter"
		cfg.OpenRouter.APIKey = k
		return cfg, true
	}

	return Config{}, false
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("SHORTMARK_ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("SHORTMARK_OPENAI_API_KEY is required for the openai provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("SHORTMARK_GEMINI_API_KEY is required for the gemini provider")
		}
	case "deepseek":
		if c.DeepSeek.APIKey == "" {
			return fmt.Errorf("SHORTMARK_DEEPSEEK_API_KEY is required for the deepseek provider")
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("SHORTMARK_OPENROUTER_API_KEY is required for the openrouter provider")
		}
	case "mock":
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
