// Optional YAML configuration file.
//
// Precedence: values set in the file win over environment defaults;
// anything the file leaves unset falls through to the environment.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no explicit
// path is given.
const DefaultFileName = "relay.yaml"

// File represents the optional on-disk configuration.
type File struct {
	Defaults  FileDefaults            `yaml:"defaults"`
	Providers map[string]ProviderFile `yaml:"providers"`
}

// FileDefaults selects the provider and model used when a request names
// neither.
type FileDefaults struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ProviderFile captures per-provider overrides.
type ProviderFile struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Load reads a YAML configuration file from disk and validates it.
func Load(path string) (File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return File{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// LoadIfPresent loads path when it exists. A missing file is not an
// error; the second return reports whether a file was found.
func LoadIfPresent(path string) (File, bool, error) {
	if path == "" {
		path = DefaultFileName
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return File{}, false, nil
		}
		return File{}, false, fmt.Errorf("stat config file %q: %w", path, err)
	}
	f, err := Load(path)
	if err != nil {
		return File{}, true, err
	}
	return f, true, nil
}

// Validate performs strict sanity checks on the configuration.
func (f File) Validate() error {
	if f.Defaults.Provider != "" {
		if _, err := getProviderInfo(normalizeProvider(f.Defaults.Provider)); err != nil {
			return fmt.Errorf("defaults.provider: %w", err)
		}
	}

	seen := make(map[string]string, len(f.Providers))
	for name, provider := range f.Providers {
		canonical := normalizeProvider(name)
		if _, err := getProviderInfo(canonical); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
		if prev, dup := seen[canonical]; dup {
			return fmt.Errorf("providers.%s and providers.%s name the same provider", prev, name)
		}
		seen[canonical] = name
		if provider.APIKey != "" && strings.TrimSpace(provider.APIKey) == "" {
			return fmt.Errorf("providers.%s: api_key must not be blank", name)
		}
		if provider.Model != "" && strings.TrimSpace(provider.Model) == "" {
			return fmt.Errorf("providers.%s: model must not be blank", name)
		}
	}

	return nil
}

// MergeSettings applies file overrides on top of environment-derived
// settings.
func (f File) MergeSettings(s Settings) Settings {
	if f.Defaults.Provider != "" {
		s.LLM.Provider = normalizeProvider(f.Defaults.Provider)
	}
	if f.Defaults.Model != "" {
		s.LLM.Model = f.Defaults.Model
	}
	if model := f.modelFor(s.LLM.Provider); model != "" {
		s.LLM.Model = model
	}
	return s
}

// modelFor returns the file's model override for a canonical provider name,
// matching alias spellings of the provider key. Validate guarantees at most
// one key per canonical name.
func (f File) modelFor(provider string) string {
	for name, p := range f.Providers {
		if normalizeProvider(name) == provider {
			return p.Model
		}
	}
	return ""
}

// MergeAPIKeys layers file credentials over the given environment
// credentials and returns the merged map.
func (f File) MergeAPIKeys(keys map[string]string) map[string]string {
	merged := make(map[string]string, len(keys))
	for name, key := range keys {
		merged[name] = key
	}
	for name, provider := range f.Providers {
		if provider.APIKey != "" {
			merged[normalizeProvider(name)] = provider.APIKey
		}
	}
	return merged
}
