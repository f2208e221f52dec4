package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
defaults:
  provider: claude
  model: claude-haiku-4-20250514
providers:
  anthropic:
    api_key: sk-ant-test
  openai:
    model: gpt-4o-mini
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Defaults.Provider != "claude" {
		t.Errorf("defaults.provider = %q", f.Defaults.Provider)
	}
	if f.Providers["anthropic"].APIKey != "sk-ant-test" {
		t.Errorf("anthropic api_key = %q", f.Providers["anthropic"].APIKey)
	}
	if f.Providers["openai"].Model != "gpt-4o-mini" {
		t.Errorf("openai model = %q", f.Providers["openai"].Model)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  cohere:
    api_key: test
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown provider in file")
	}
}

func TestLoadRejectsUnknownDefaultProvider(t *testing.T) {
	path := writeConfigFile(t, `
defaults:
  provider: cohere
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown defaults.provider")
	}
}

func TestLoadIfPresentMissing(t *testing.T) {
	_, found, err := LoadIfPresent(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for a missing file")
	}
}

func TestMergeSettings(t *testing.T) {
	f := File{
		Defaults: FileDefaults{Provider: "claude"},
		Providers: map[string]ProviderFile{
			"anthropic": {Model: "claude-haiku-4-20250514"},
		},
	}

	settings := Settings{LLM: LLMConfig{Provider: "openai", Model: "gpt-4o"}}
	merged := f.MergeSettings(settings)

	if merged.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, want the file default (normalized)", merged.LLM.Provider)
	}
	if merged.LLM.Model != "claude-haiku-4-20250514" {
		t.Errorf("model = %q, want the per-provider file model", merged.LLM.Model)
	}
}

func TestMergeSettingsAliasKey(t *testing.T) {
	f := File{
		Providers: map[string]ProviderFile{
			"claude": {Model: "claude-haiku-4-20250514"},
		},
	}

	settings := Settings{LLM: LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}}
	merged := f.MergeSettings(settings)

	if merged.LLM.Model != "claude-haiku-4-20250514" {
		t.Errorf("model = %q, want the override keyed by alias", merged.LLM.Model)
	}
	if merged.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, want unchanged", merged.LLM.Provider)
	}
}

func TestLoadRejectsDuplicateProvider(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  claude:
    model: claude-haiku-4-20250514
  anthropic:
    api_key: sk-ant-test
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for alias and canonical keys naming one provider")
	}
	if !strings.Contains(err.Error(), "same provider") {
		t.Errorf("error = %v, want a duplicate provider complaint", err)
	}
}

func TestMergeAPIKeysFileWins(t *testing.T) {
	f := File{
		Providers: map[string]ProviderFile{
			"claude": {APIKey: "file-key"},
		},
	}

	merged := f.MergeAPIKeys(map[string]string{
		"anthropic": "env-key",
		"openai":    "env-openai",
	})

	if merged["anthropic"] != "file-key" {
		t.Errorf("anthropic key = %q, want the file value", merged["anthropic"])
	}
	if merged["openai"] != "env-openai" {
		t.Errorf("openai key = %q, want the untouched env value", merged["openai"])
	}
}
