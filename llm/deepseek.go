// DeepSeek adapter.
//
// DeepSeek exposes an OpenAI-compatible API under a different base URL, so
// this adapter is the OpenAI completion and streaming core pointed at the
// DeepSeek endpoint.

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeek is the Provider adapter for the DeepSeek API.
type DeepSeek struct {
	client *openai.Client
}

// NewDeepSeek creates a DeepSeek adapter.
func NewDeepSeek(apiKey string) *DeepSeek {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = deepseekBaseURL
	return &DeepSeek{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the canonical provider name.
func (p *DeepSeek) Name() string {
	return ProviderDeepSeek
}

// Complete executes a non-streaming request.
func (p *DeepSeek) Complete(ctx context.Context, req Request) Response {
	return completeChatAPI(ctx, p.client, req)
}

// Stream executes a streaming request.
func (p *DeepSeek) Stream(ctx context.Context, req Request) <-chan StreamChunk {
	return streamChatAPI(ctx, p.client, req)
}

// Verify DeepSeek implements Provider
var _ Provider = (*DeepSeek)(nil)
