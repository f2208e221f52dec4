package storage

import (
	"testing"

	"github.com/calyptra/relay/llm"
)

func TestAssistantRecordFields(t *testing.T) {
	content := "Paris."
	resp := llm.Response{
		Content:      &content,
		FinishReason: llm.FinishStop,
		Usage:        &llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		ModelName:    llm.ModelAnthropicClaudeSonnet4,
	}

	rec := AssistantRecord("s1", llm.ProviderAnthropic, resp)

	if rec.Role != "assistant" {
		t.Errorf("role = %q, want assistant", rec.Role)
	}
	if rec.Content != "Paris." {
		t.Errorf("content = %q", rec.Content)
	}
	if rec.Provider != llm.ProviderAnthropic || rec.Model != llm.ModelAnthropicClaudeSonnet4 {
		t.Errorf("provider/model = %q/%q", rec.Provider, rec.Model)
	}
	if rec.PromptTokens != 10 || rec.CompletionTokens != 2 {
		t.Errorf("usage = %d/%d", rec.PromptTokens, rec.CompletionTokens)
	}
	if rec.FunctionCall != "" {
		t.Errorf("function call = %q, want empty", rec.FunctionCall)
	}
}

func TestHistoryPlainMessages(t *testing.T) {
	records := []Message{
		UserRecord("s1", "Hello"),
		{SessionID: "s1", Role: "assistant", Content: "Hi there"},
	}

	history := History(records)

	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != llm.RoleUser || history[0].Text() != "Hello" {
		t.Errorf("unexpected first message: %+v", history[0])
	}
	if history[1].Role != llm.RoleAssistant || history[1].Text() != "Hi there" {
		t.Errorf("unexpected second message: %+v", history[1])
	}
}

func TestHistoryEmptyContentKeepsMessage(t *testing.T) {
	// A plain empty turn still round-trips as an empty string, never as
	// a dropped message.
	history := History([]Message{{SessionID: "s1", Role: "user", Content: ""}})

	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}
	if history[0].Content == nil || *history[0].Content != "" {
		t.Errorf("content = %v, want empty string", history[0].Content)
	}
}
