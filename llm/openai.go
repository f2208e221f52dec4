// OpenAI adapter built on the go-openai library.
//
// Hidden here:
// - API endpoint and authentication
// - Chat Completions request/response conversion
// - Function-calling payload shapes (legacy function_call and tool_calls)
// - Streaming via go-openai, including argument-fragment assembly
//
// The completion and streaming cores are shared with the DeepSeek adapter,
// which speaks the same protocol against a different endpoint.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is the Provider adapter for the OpenAI API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey)}
}

// Name returns the canonical provider name.
func (p *OpenAI) Name() string {
	return ProviderOpenAI
}

// Complete executes a non-streaming request.
func (p *OpenAI) Complete(ctx context.Context, req Request) Response {
	return completeChatAPI(ctx, p.client, req)
}

// Stream executes a streaming request.
func (p *OpenAI) Stream(ctx context.Context, req Request) <-chan StreamChunk {
	return streamChatAPI(ctx, p.client, req)
}

// completeChatAPI runs one non-streaming chat completion against an
// OpenAI-compatible endpoint and converts the result to canonical form.
func completeChatAPI(ctx context.Context, client *openai.Client, req Request) Response {
	resp, err := client.CreateChatCompletion(ctx, toOpenAIRequest(req, false))
	if err != nil {
		kind, msg := Classify(err)
		return ErrorResponse(kind, msg, req.Model)
	}
	if len(resp.Choices) == 0 {
		return ErrorResponse(KindUnknown, "no completion choices returned", req.Model)
	}

	choice := resp.Choices[0]
	out := Response{
		FinishReason: finishFromOpenAI(choice.FinishReason),
		Usage:        usageFromOpenAI(resp.Usage),
		ModelName:    nonEmpty(resp.Model, req.Model),
	}
	if fc := functionCallFromOpenAI(choice.Message); fc != nil {
		out.FunctionCall = fc
		out.FinishReason = FinishFunctionCall
	} else {
		content := choice.Message.Content
		out.Content = &content
	}
	return out
}

// streamChatAPI runs one streaming chat completion against an
// OpenAI-compatible endpoint. Function-call arguments arrive as string
// fragments and are assembled before the terminal chunk.
func streamChatAPI(ctx context.Context, client *openai.Client, req Request) <-chan StreamChunk {
	asm := NewAssembler(req.Model, ModeDelta)
	go func() {
		defer asm.Close()

		stream, err := client.CreateChatCompletionStream(ctx, toOpenAIRequest(req, true))
		if err != nil {
			kind, msg := Classify(err)
			asm.Fail(ctx, kind, msg)
			return
		}
		defer stream.Close()

		var (
			usage  *Usage
			finish FinishReason
			fcName string
			fcArgs strings.Builder
		)
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				kind, msg := Classify(err)
				asm.Fail(ctx, kind, msg)
				return
			}

			// Usage rides on the last event when IncludeUsage is set.
			if resp.Usage != nil {
				usage = usageFromOpenAI(*resp.Usage)
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" && choice.FinishReason != openai.FinishReasonNull {
				finish = finishFromOpenAI(choice.FinishReason)
			}
			if fc := choice.Delta.FunctionCall; fc != nil {
				if fc.Name != "" {
					fcName = fc.Name
				}
				fcArgs.WriteString(fc.Arguments)
			}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.Function.Name != "" {
					fcName = tc.Function.Name
				}
				fcArgs.WriteString(tc.Function.Arguments)
			}
			if choice.Delta.Content != "" {
				if !asm.Emit(ctx, choice.Delta.Content) {
					return
				}
			}
		}

		var fc *FunctionCall
		if fcName != "" {
			fc = NormalizeFunctionCall(RawFunctionCall{Name: fcName, Arguments: fcArgs.String()})
		}
		asm.Finish(ctx, finish, fc, usage)
	}()
	return asm.Chunks()
}

func toOpenAIRequest(req Request, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if len(req.Functions) > 0 {
		out.Functions = toOpenAIFunctions(req.Functions)
	}
	if stream {
		out.Stream = true
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// toOpenAIMessages converts canonical messages. Assistant turns with neither
// text nor a function call are dropped; the API rejects them.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleAssistant && msg.Text() == "" && msg.FunctionCall == nil {
			continue
		}
		m := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
			Name:    msg.Name,
		}
		if msg.FunctionCall != nil {
			args, _ := json.Marshal(msg.FunctionCall.Args)
			m.FunctionCall = &openai.FunctionCall{
				Name:      msg.FunctionCall.Name,
				Arguments: string(args),
			}
		}
		out = append(out, m)
	}
	return out
}

func toOpenAIFunctions(specs []FunctionSpec) []openai.FunctionDefinition {
	out := make([]openai.FunctionDefinition, len(specs))
	for i, spec := range specs {
		out[i] = openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		}
	}
	return out
}

// functionCallFromOpenAI reads a function call from either the legacy
// function_call field or the first tool call.
func functionCallFromOpenAI(msg openai.ChatCompletionMessage) *FunctionCall {
	if msg.FunctionCall != nil {
		return NormalizeFunctionCall(RawFunctionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		})
	}
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		return NormalizeFunctionCall(RawFunctionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return nil
}

func finishFromOpenAI(reason openai.FinishReason) FinishReason {
	switch reason {
	case openai.FinishReasonLength:
		return FinishLength
	case openai.FinishReasonFunctionCall, openai.FinishReasonToolCalls:
		return FinishFunctionCall
	case openai.FinishReasonContentFilter:
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func usageFromOpenAI(u openai.Usage) *Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	return &Usage{
		PromptTokens:     uint32(u.PromptTokens),
		CompletionTokens: uint32(u.CompletionTokens),
		TotalTokens:      uint32(u.TotalTokens),
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// Verify OpenAI implements Provider
var _ Provider = (*OpenAI)(nil)
