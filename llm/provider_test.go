package llm

import "testing"

func TestParseProviderType(t *testing.T) {
	cases := []struct {
		in   string
		want ProviderType
	}{
		{"anthropic", ProviderAnthropic},
		{"Claude", ProviderAnthropic},
		{"openai", ProviderOpenAI},
		{"GPT", ProviderOpenAI},
		{"deepseek", ProviderDeepSeek},
		{"gemini", ProviderGemini},
		{"google", ProviderGemini},
	}
	for _, tc := range cases {
		got, err := ParseProviderType(tc.in)
		if err != nil {
			t.Errorf("ParseProviderType(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("unknown provider must fail")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{APIKey: "k"}.withDefaults(ProviderAnthropic)
	if cfg.Model != ModelAnthropicClaudeOpus45 {
		t.Errorf("default model: %q", cfg.Model)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("default max tokens: %d", cfg.MaxTokens)
	}

	cfg = Config{APIKey: "k", Model: ModelGeminiPro3, MaxTokens: 1024}.withDefaults(ProviderGemini)
	if cfg.Model != ModelGeminiPro3 || cfg.MaxTokens != 1024 {
		t.Errorf("explicit settings overridden: %+v", cfg)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(ProviderAnthropic, Config{}); err == nil {
		t.Error("New without API key must fail")
	}
}
