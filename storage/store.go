// Package storage persists conversation messages.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each implementation encapsulates its own data structures

package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/calyptra/relay/llm"
)

// Message is one persisted conversation turn. Provider, model, usage and
// function-call fields are populated for assistant turns only.
type Message struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	FinishReason     string    `json:"finish_reason,omitempty"`
	FunctionCall     string    `json:"function_call,omitempty"`
	PromptTokens     uint32    `json:"prompt_tokens,omitempty"`
	CompletionTokens uint32    `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// MessageStore stores conversation messages grouped by session.
type MessageStore interface {
	// AppendMessage persists msg, assigning ID and CreatedAt when unset.
	AppendMessage(ctx context.Context, msg *Message) error

	// Messages returns a session's messages in append order. Returns an
	// empty slice (not nil) for unknown sessions; errors only signal
	// storage failures.
	Messages(ctx context.Context, sessionID string) ([]Message, error)

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListSessions lists session IDs, most recently written first.
	ListSessions(ctx context.Context) ([]string, error)
}

// UserRecord builds the record for a user prompt.
func UserRecord(sessionID, content string) Message {
	return Message{
		SessionID: sessionID,
		Role:      string(llm.RoleUser),
		Content:   content,
	}
}

// AssistantRecord builds the record for a completed response. Error
// responses carry no assistant turn and must not be persisted.
func AssistantRecord(sessionID, provider string, resp llm.Response) Message {
	msg := Message{
		SessionID:    sessionID,
		Role:         string(llm.RoleAssistant),
		Content:      resp.Text(),
		Provider:     provider,
		Model:        resp.ModelName,
		FinishReason: string(resp.FinishReason),
	}
	if resp.FunctionCall != nil {
		if encoded, err := json.Marshal(resp.FunctionCall); err == nil {
			msg.FunctionCall = string(encoded)
		}
	}
	if resp.Usage != nil {
		msg.PromptTokens = resp.Usage.PromptTokens
		msg.CompletionTokens = resp.Usage.CompletionTokens
	}
	return msg
}

// History converts a session's records back into canonical messages,
// ready to seed the next request. Function-call payloads are restored so
// assistant tool turns survive a round trip.
func History(records []Message) []llm.Message {
	history := make([]llm.Message, 0, len(records))
	for _, rec := range records {
		msg := llm.Message{Role: llm.Role(rec.Role)}
		if rec.FunctionCall != "" {
			var call llm.FunctionCall
			if err := json.Unmarshal([]byte(rec.FunctionCall), &call); err == nil {
				msg.FunctionCall = &call
			}
		}
		if rec.Content != "" || msg.FunctionCall == nil {
			content := rec.Content
			msg.Content = &content
		}
		history = append(history, msg)
	}
	return history
}
