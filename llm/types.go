// Package llm defines the canonical request/response contract shared by all
// provider adapters and the shapes everything downstream (cache, retry,
// orchestrator) operates on.
//
// Providers differ in wire format, streaming protocol, and error shape; the
// types here are the single vocabulary the rest of the system speaks. A
// caller builds a Request, and always receives a well-formed Response or a
// stream of well-formed StreamChunks, never a provider SDK type.
package llm

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Message is one turn of a conversation. Content is a pointer because an
// assistant turn that carries a function call has no text at all, which is
// distinct from empty text.
type Message struct {
	Role         Role          `json:"role"`
	Content      *string       `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// Text returns the message content, or "" when the content is absent.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: &content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: &content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: &content}
}

// FunctionMessage creates a function-result message for the named function.
func FunctionMessage(name, content string) Message {
	return Message{Role: RoleFunction, Name: name, Content: &content}
}

// FunctionCall is a model's request to invoke a function. Args is always a
// decoded mapping, never a raw JSON string; NormalizeFunctionCall is the one
// place provider-specific shapes are converted into this form.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionSpec declares a function the model may call. Parameters is a JSON
// schema object; it is passed through to the provider untouched.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the model-agnostic generation request. Provider may be left
// empty, in which case it is inferred from the model identifier. Temperature
// is a pointer so "not set" and 0 stay distinct.
type Request struct {
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature *float32       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Functions   []FunctionSpec `json:"functions,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// Temp returns a Temperature pointer, for building requests inline.
func Temp(t float32) *float32 {
	return &t
}

// Usage reports token consumption for a completed request.
type Usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// FinishReason describes why generation stopped, normalized across providers.
type FinishReason string

const (
	FinishStop          FinishReason = "STOP"
	FinishLength        FinishReason = "LENGTH"
	FinishFunctionCall  FinishReason = "FUNCTION_CALL"
	FinishContentFilter FinishReason = "CONTENT_FILTER"
	FinishError         FinishReason = "ERROR"
)

// Response is the uniform result of a non-streaming request. Error responses
// set Error, Kind, and Message; success responses set Content or
// FunctionCall. Content is nil exactly when FinishReason is FUNCTION_CALL.
type Response struct {
	Error        bool          `json:"error"`
	Content      *string       `json:"content"`
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	ModelName    string        `json:"model_name,omitempty"`
	Message      string        `json:"message,omitempty"`
	Kind         ErrorKind     `json:"type,omitempty"`
}

// Text returns the response content, or "" when the content is absent.
func (r Response) Text() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// ErrorResponse builds the canonical error result for a failed request.
func ErrorResponse(kind ErrorKind, message, model string) Response {
	return Response{
		Error:        true,
		FinishReason: FinishError,
		ModelName:    model,
		Message:      message,
		Kind:         kind,
	}
}

// StreamChunk is one element of a streaming response. Exactly one chunk per
// completed stream has IsFinal set; it is the last chunk and carries the
// final finish reason, usage, and any function call. AccumulatedContent is
// the concatenation of all deltas up to and including this one.
type StreamChunk struct {
	Error              bool          `json:"error"`
	Delta              *string       `json:"delta,omitempty"`
	AccumulatedContent *string       `json:"accumulated_content,omitempty"`
	IsFinal            bool          `json:"is_final"`
	FinishReason       FinishReason  `json:"finish_reason,omitempty"`
	FunctionCall       *FunctionCall `json:"function_call,omitempty"`
	Usage              *Usage        `json:"usage,omitempty"`
	ModelName          string        `json:"model_name,omitempty"`
	Message            string        `json:"message,omitempty"`
	Kind               ErrorKind     `json:"type,omitempty"`
}

// ErrorChunk builds the single terminal chunk for a stream that failed
// before producing any output.
func ErrorChunk(kind ErrorKind, message, model string) StreamChunk {
	return StreamChunk{
		Error:        true,
		IsFinal:      true,
		FinishReason: FinishError,
		ModelName:    model,
		Message:      message,
		Kind:         kind,
	}
}

// Final reconstructs a Response from a terminal stream chunk, so streamed and
// non-streamed requests persist and report identically.
func (c StreamChunk) Final() Response {
	if c.Error {
		return ErrorResponse(c.Kind, c.Message, c.ModelName)
	}
	resp := Response{
		FinishReason: c.FinishReason,
		FunctionCall: c.FunctionCall,
		Usage:        c.Usage,
		ModelName:    c.ModelName,
	}
	if c.FinishReason != FinishFunctionCall {
		content := ""
		if c.AccumulatedContent != nil {
			content = *c.AccumulatedContent
		}
		resp.Content = &content
	}
	return resp
}
