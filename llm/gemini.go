// Google Gemini adapter built on the official google.golang.org/genai SDK.
//
// Hidden here:
// - API authentication and client creation
// - Content/Part conversion and the system instruction config field
// - JSON-schema to genai.Schema conversion for function declarations
// - Streaming via the SDK's iterator

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini is the Provider adapter for the Google Gemini API.
type Gemini struct {
	client *genai.Client
	// initErr holds a client construction failure, reported on first use so
	// the constructor keeps the same shape as the other adapters.
	initErr error
}

// NewGemini creates a Gemini adapter. A client construction failure is
// deferred and surfaces as a provider_unavailable response on first use.
func NewGemini(apiKey string) *Gemini {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &Gemini{initErr: fmt.Errorf("gemini client init: %w", err)}
	}
	return &Gemini{client: client}
}

// Name returns the canonical provider name.
func (p *Gemini) Name() string {
	return ProviderGemini
}

// Complete executes a non-streaming request.
func (p *Gemini) Complete(ctx context.Context, req Request) Response {
	if p.initErr != nil {
		return ErrorResponse(KindProviderUnavailable, p.initErr.Error(), req.Model)
	}

	contents, config := toGeminiRequest(req)
	response, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		kind, msg := Classify(err)
		return ErrorResponse(kind, msg, req.Model)
	}

	if blocked, reason := promptBlocked(response); blocked {
		return ErrorResponse(KindContentFiltered, reason, req.Model)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ErrorResponse(KindUnknown, "no candidates returned", req.Model)
	}

	candidate := response.Candidates[0]
	content := ""
	var fc *FunctionCall
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			content += part.Text
		}
		if part.FunctionCall != nil {
			fc = NormalizeFunctionCall(&FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}

	out := Response{
		FinishReason: finishFromGemini(candidate.FinishReason),
		Usage:        usageFromGemini(response.UsageMetadata),
		ModelName:    nonEmpty(response.ModelVersion, req.Model),
	}
	if fc != nil {
		out.FunctionCall = fc
		out.FinishReason = FinishFunctionCall
	} else {
		out.Content = &content
	}
	return out
}

// Stream executes a streaming request. Each iterator step carries that
// step's text on its own, so the assembler runs in delta mode.
func (p *Gemini) Stream(ctx context.Context, req Request) <-chan StreamChunk {
	asm := NewAssembler(req.Model, ModeDelta)
	go func() {
		defer asm.Close()

		if p.initErr != nil {
			asm.Fail(ctx, KindProviderUnavailable, p.initErr.Error())
			return
		}

		contents, config := toGeminiRequest(req)

		var (
			usage  *Usage
			finish FinishReason
			fc     *FunctionCall
		)
		for response, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if err != nil {
				kind, msg := Classify(err)
				asm.Fail(ctx, kind, msg)
				return
			}
			if response.UsageMetadata != nil {
				usage = usageFromGemini(response.UsageMetadata)
			}
			if len(response.Candidates) == 0 {
				continue
			}
			candidate := response.Candidates[0]
			if candidate.FinishReason != "" {
				finish = finishFromGemini(candidate.FinishReason)
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.FunctionCall != nil {
					fc = NormalizeFunctionCall(&FunctionCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					})
				}
				if part.Text != "" {
					if !asm.Emit(ctx, part.Text) {
						return
					}
				}
			}
		}

		asm.Finish(ctx, finish, fc, usage)
	}()
	return asm.Chunks()
}

func toGeminiRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents, system := toGeminiContents(req.Messages)

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Functions) > 0 {
		config.Tools = toGeminiTools(req.Functions)
	}
	return contents, config
}

// toGeminiContents converts canonical messages. System turns feed the
// system instruction; empty assistant turns are dropped; function results
// become FunctionResponse parts under the user role, which is where Gemini
// expects them.
func toGeminiContents(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system != "" && msg.Text() != "" {
				system += "\n\n"
			}
			system += msg.Text()
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Text(), genai.RoleUser))
		case RoleAssistant:
			switch {
			case msg.FunctionCall != nil:
				content := &genai.Content{Role: genai.RoleModel}
				if msg.Text() != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: msg.Text()})
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: msg.FunctionCall.Name,
						Args: msg.FunctionCall.Args,
					},
				})
				contents = append(contents, content)
			case msg.Text() != "":
				contents = append(contents, genai.NewContentFromText(msg.Text(), genai.RoleModel))
			}
		case RoleFunction:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.Name,
						Response: map[string]any{"result": msg.Text()},
					},
				}},
			})
		}
	}

	return contents, system
}

func toGeminiTools(specs []FunctionSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  toGeminiSchema(spec.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON-schema object to genai.Schema. Gemini
// requires an items schema for arrays; string items are assumed when the
// schema omits them.
func toGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := params["type"].(string); ok {
		schema.Type = toGeminiType(t)
	}
	schema.Required = requiredFields(params)

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			propMap, ok := prop.(map[string]any)
			if !ok {
				continue
			}
			schema.Properties[name] = toGeminiPropertySchema(propMap)
		}
	}

	return schema
}

func toGeminiPropertySchema(prop map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := prop["type"].(string); ok {
		schema.Type = toGeminiType(t)
	}
	if d, ok := prop["description"].(string); ok {
		schema.Description = d
	}

	if schema.Type == genai.TypeArray {
		if items, ok := prop["items"].(map[string]any); ok {
			schema.Items = toGeminiPropertySchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	if schema.Type == genai.TypeObject {
		if props, ok := prop["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]*genai.Schema)
			for name, p := range props {
				if pMap, ok := p.(map[string]any); ok {
					schema.Properties[name] = toGeminiPropertySchema(pMap)
				}
			}
		}
	}

	return schema
}

func toGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func promptBlocked(response *genai.GenerateContentResponse) (bool, string) {
	fb := response.PromptFeedback
	if fb == nil || fb.BlockReason == "" {
		return false, ""
	}
	reason := nonEmpty(fb.BlockReasonMessage, string(fb.BlockReason))
	return true, "prompt blocked: " + reason
}

func finishFromGemini(reason genai.FinishReason) FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent:
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func usageFromGemini(meta *genai.GenerateContentResponseUsageMetadata) *Usage {
	if meta == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     uint32(meta.PromptTokenCount),
		CompletionTokens: uint32(meta.CandidatesTokenCount),
		TotalTokens:      uint32(meta.TotalTokenCount),
	}
}

// Verify Gemini implements Provider
var _ Provider = (*Gemini)(nil)
