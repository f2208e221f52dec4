// Anthropic adapter built on the official anthropic-sdk-go.
//
// Hidden here:
// - API endpoint and authentication
// - Messages API conversion, including the out-of-band system prompt
// - tool_use blocks and input_json_delta streaming fragments
// - SSE event handling via the official SDK

package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// The Messages API requires max_tokens; applied when a request leaves it unset.
const defaultMaxTokens = 4096

// Anthropic is the Provider adapter for the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Name returns the canonical provider name.
func (p *Anthropic) Name() string {
	return ProviderAnthropic
}

// Complete executes a non-streaming request.
func (p *Anthropic) Complete(ctx context.Context, req Request) Response {
	message, err := p.client.Messages.New(ctx, toAnthropicParams(req))
	if err != nil {
		kind, msg := Classify(err)
		return ErrorResponse(kind, msg, req.Model)
	}

	var text strings.Builder
	var fc *FunctionCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(variant.Input)
			fc = NormalizeFunctionCall(RawFunctionCall{
				Name:      variant.Name,
				Arguments: string(inputJSON),
			})
		}
	}

	out := Response{
		FinishReason: finishFromAnthropic(message.StopReason),
		Usage:        usageFromAnthropic(message.Usage.InputTokens, message.Usage.OutputTokens),
		ModelName:    nonEmpty(string(message.Model), req.Model),
	}
	if fc != nil {
		out.FunctionCall = fc
		out.FinishReason = FinishFunctionCall
	} else {
		content := text.String()
		out.Content = &content
	}
	return out
}

// Stream executes a streaming request. Text arrives as content_block deltas;
// tool input arrives as partial JSON fragments that are assembled before the
// terminal chunk.
func (p *Anthropic) Stream(ctx context.Context, req Request) <-chan StreamChunk {
	asm := NewAssembler(req.Model, ModeDelta)
	go func() {
		defer asm.Close()

		stream := p.client.Messages.NewStreaming(ctx, toAnthropicParams(req))

		var (
			inputTokens  int64
			outputTokens int64
			finish       FinishReason
			fcName       string
			fcArgs       strings.Builder
		)
		for stream.Next() {
			event := stream.Current()
			switch eventVariant := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				inputTokens = eventVariant.Message.Usage.InputTokens
			case anthropic.ContentBlockStartEvent:
				if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					fcName = block.Name
				}
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text != "" {
						if !asm.Emit(ctx, deltaVariant.Text) {
							return
						}
					}
				case anthropic.InputJSONDelta:
					fcArgs.WriteString(deltaVariant.PartialJSON)
				}
			case anthropic.MessageDeltaEvent:
				if eventVariant.Delta.StopReason != "" {
					finish = finishFromAnthropic(eventVariant.Delta.StopReason)
				}
				if eventVariant.Usage.OutputTokens > 0 {
					outputTokens = eventVariant.Usage.OutputTokens
				}
			}
		}
		if err := stream.Err(); err != nil {
			kind, msg := Classify(err)
			asm.Fail(ctx, kind, msg)
			return
		}

		var fc *FunctionCall
		if fcName != "" {
			fc = NormalizeFunctionCall(RawFunctionCall{Name: fcName, Arguments: fcArgs.String()})
		}
		asm.Finish(ctx, finish, fc, usageFromAnthropic(inputTokens, outputTokens))
	}()
	return asm.Chunks()
}

func toAnthropicParams(req Request) anthropic.MessageNewParams {
	messages, system := toAnthropicMessages(req.Messages)

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Functions) > 0 {
		params.Tools = toAnthropicTools(req.Functions)
	}
	return params
}

// toAnthropicMessages converts canonical messages. System turns are
// extracted and joined for the out-of-band system field; empty assistant
// turns are dropped. Function-result turns become tool_result blocks keyed
// by function name, matching the tool_use IDs this adapter emits.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Text() != "" {
				system = append(system, msg.Text())
			}
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Text()),
			))
		case RoleAssistant:
			switch {
			case msg.FunctionCall != nil:
				content := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
				if msg.Text() != "" {
					content.Content = append(content.Content, anthropic.NewTextBlock(msg.Text()))
				}
				content.Content = append(content.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    msg.FunctionCall.Name,
						Name:  msg.FunctionCall.Name,
						Input: msg.FunctionCall.Args,
					},
				})
				out = append(out, content)
			case msg.Text() != "":
				out = append(out, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Text()),
				))
			}
		case RoleFunction:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.Name, msg.Text(), false),
			))
		}
	}

	return out, strings.Join(system, "\n\n")
}

func toAnthropicTools(specs []FunctionSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(specs))
	for i, spec := range specs {
		properties, _ := spec.Parameters["properties"].(map[string]any)
		tool := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   requiredFields(spec.Parameters),
			},
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return out
}

// requiredFields reads a JSON-schema required list, which decodes as []any
// from JSON but may be built natively as []string.
func requiredFields(params map[string]any) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func finishFromAnthropic(reason anthropic.StopReason) FinishReason {
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case anthropic.StopReasonToolUse:
		return FinishFunctionCall
	case anthropic.StopReasonRefusal:
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func usageFromAnthropic(inputTokens, outputTokens int64) *Usage {
	if inputTokens == 0 && outputTokens == 0 {
		return nil
	}
	return &Usage{
		PromptTokens:     uint32(inputTokens),
		CompletionTokens: uint32(outputTokens),
		TotalTokens:      uint32(inputTokens + outputTokens),
	}
}

// Verify Anthropic implements Provider
var _ Provider = (*Anthropic)(nil)
