// Provider names, model identifiers, and model-to-provider inference.
package llm

import "strings"

// Canonical provider names. These are the only values Request.Provider may
// resolve to; aliases are folded by CanonicalProviderName.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderDeepSeek  = "deepseek"
	ProviderGemini    = "gemini"
)

// ProviderNames returns the canonical provider names in stable order.
func ProviderNames() []string {
	return []string{ProviderAnthropic, ProviderDeepSeek, ProviderGemini, ProviderOpenAI}
}

// CanonicalProviderName folds a provider name or alias to its canonical
// form. It is case-insensitive.
func CanonicalProviderName(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, true
	case "anthropic", "claude":
		return ProviderAnthropic, true
	case "deepseek":
		return ProviderDeepSeek, true
	case "gemini", "google":
		return ProviderGemini, true
	}
	return "", false
}

// InferProvider resolves the provider for a model identifier. It understands
// the explicit "provider/model" form, which wins over prefix matching and
// strips the provider segment from the returned model, and the common
// model-name prefix conventions.
func InferProvider(model string) (provider, bare string, ok bool) {
	if i := strings.IndexByte(model, '/'); i > 0 {
		if name, ok := CanonicalProviderName(model[:i]); ok {
			return name, model[i+1:], true
		}
		return "", model, false
	}
	switch {
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"):
		return ProviderOpenAI, model, true
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic, model, true
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGemini, model, true
	case strings.HasPrefix(model, "deepseek-"):
		return ProviderDeepSeek, model, true
	}
	return "", model, false
}

// Model identifiers for the bundled providers.

// OpenAI models.
const (
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
	ModelOpenAIO3Mini    = "o3-mini"
)

// Anthropic models.
const (
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku4  = "claude-haiku-4-20250514"
)

// DeepSeek models.
const (
	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"
)

// Gemini models.
const (
	ModelGeminiFlash25 = "gemini-2.5-flash"
	ModelGeminiPro25   = "gemini-2.5-pro"
)
