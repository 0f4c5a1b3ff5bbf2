package llm

import (
	"context"
	"fmt"
)

// Tier selects which of the configured models a provider is built for.
type Tier int

const (
	// TierPrimary is the fast, cheap model that grades every submission.
	TierPrimary Tier = iota
	// TierStrong is the slower model used for escalations.
	TierStrong
)

// NewProvider creates a Provider for the given tier from configuration.
// It returns the provider wrapped with retry and logging middleware.
func NewProvider(ctx context.Context, cfg Config, tier Tier, logs RequestLogRepo) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		ac := cfg.Anthropic
		if tier == TierStrong && ac.Strong != "" {
			ac.Model = ac.Strong
		}
		base, err = NewAnthropicProvider(ac)
	case "openai":
		oc := cfg.OpenAI
		if tier == TierStrong && oc.Strong != "" {
			oc.Model = oc.Strong
		}
		base, err = NewOpenAIProvider(oc)
	case "gemini":
		gc := cfg.Gemini
		if tier == TierStrong && gc.Strong != "" {
			gc.Model = gc.Strong
		}
		base, err = NewGeminiProvider(ctx, gc)
	case "deepseek":
		dc := cfg.DeepSeek
		if tier == TierStrong && dc.Strong != "" {
			dc.Model = dc.Strong
		}
		base, err = NewDeepSeekProvider(dc)
	case "openrouter":
		rc := cfg.OpenRouter
		if tier == TierStrong && rc.Strong != "" {
			rc.Model = rc.Strong
		}
		base, err = NewOpenRouterProvider(rc)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Wrap with middleware: caller → retry → logging → base
	logged := WithLogging(base, logs)
	retried := WithRetry(logged, cfg.Retry)

	return retried, nil
}
