package llm

import (
	"fmt"

	"panelcore/backend"
)

// New creates an adapter for the given provider type.
func New(p ProviderType, cfg Config) (backend.Client, error) {
	cfg = cfg.withDefaults(p)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not set", p)
	}

	switch p {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderDeepSeek:
		return NewDeepSeekClient(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", p)
	}
}
