// Adapter construction.
//
// The provider set is closed: adapters are selected by canonical name at
// wiring time, never discovered at runtime.

package llm

import "fmt"

// Build constructs the adapter for a provider name or alias.
func Build(provider, apiKey string) (Provider, error) {
	name, ok := CanonicalProviderName(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	switch name {
	case ProviderOpenAI:
		return NewOpenAI(apiKey), nil
	case ProviderAnthropic:
		return NewAnthropic(apiKey), nil
	case ProviderDeepSeek:
		return NewDeepSeek(apiKey), nil
	case ProviderGemini:
		return NewGemini(apiKey), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

// BuildRegistry constructs a registry with an adapter for every provider
// that has a non-empty API key in keys. Providers without keys are skipped,
// so a deployment only serves the providers it holds credentials for.
func BuildRegistry(keys map[string]string) (*Registry, error) {
	reg := NewRegistry()
	for provider, key := range keys {
		if key == "" {
			continue
		}
		p, err := Build(provider, key)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
