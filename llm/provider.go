// Package llm provides direct provider adapters that speak the same
// event stream as the panel backend, so a session can run against a
// model API when no backend is configured.
//
// Each adapter implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Translation of SDK stream events into the panel event union

package llm

import (
	"fmt"
	"strings"
)

// ProviderType represents supported model providers.
type ProviderType int

const (
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderDeepSeek is the DeepSeek provider (OpenAI-compatible API).
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderAnthropic:
		return "anthropic"
	case ProviderOpenAI:
		return "openai"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderAnthropic:
		return ModelAnthropicClaudeOpus45
	case ProviderOpenAI:
		return ModelOpenAIGPT52
	case ProviderDeepSeek:
		return ModelDeepSeekV32
	case ProviderGemini:
		return ModelGeminiFlash3
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// Config carries the settings shared by all provider adapters.
type Config struct {
	APIKey      string
	Model       string // empty uses the provider default
	MaxTokens   uint32 // zero uses 4096
	Temperature float32
}

func (c Config) withDefaults(p ProviderType) Config {
	if c.Model == "" {
		c.Model = p.DefaultModel()
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	return c
}

// streamBuffer is the event channel capacity for all adapters.
const streamBuffer = 64
