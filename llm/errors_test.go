package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// TestClassifyStatusCodes covers the HTTP status mapping via go-openai API
// errors, which carry a plain status code.
func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{429, KindRateLimited},
		{408, KindTimeout},
		{504, KindTimeout},
		{401, KindAuth},
		{403, KindAuth},
		{400, KindInvalidRequest},
		{404, KindInvalidRequest},
		{422, KindInvalidRequest},
		{500, KindProviderUnavailable},
		{502, KindProviderUnavailable},
		{503, KindProviderUnavailable},
		{529, KindProviderUnavailable},
		{418, KindUnknown},
	}

	for _, tt := range tests {
		err := &openai.APIError{HTTPStatusCode: tt.status, Message: "upstream says no"}
		kind, msg := Classify(err)
		if kind != tt.want {
			t.Errorf("status %d: kind = %q, want %q", tt.status, kind, tt.want)
		}
		if msg != "upstream says no" {
			t.Errorf("status %d: message = %q", tt.status, msg)
		}
	}
}

// TestClassifyOpenAISpecials covers quota and content-filter codes that do
// not follow the plain status mapping.
func TestClassifyOpenAISpecials(t *testing.T) {
	kind, _ := Classify(&openai.APIError{Type: "insufficient_quota", HTTPStatusCode: 429})
	if kind != KindRateLimited {
		t.Errorf("insufficient_quota: kind = %q, want %q", kind, KindRateLimited)
	}

	kind, _ = Classify(&openai.APIError{Code: "content_filter", HTTPStatusCode: 400})
	if kind != KindContentFiltered {
		t.Errorf("content_filter: kind = %q, want %q", kind, KindContentFiltered)
	}
}

// TestClassifyGemini verifies genai API errors map by their code.
func TestClassifyGemini(t *testing.T) {
	kind, msg := Classify(genai.APIError{Code: 429, Message: "quota exceeded"})
	if kind != KindRateLimited || msg != "quota exceeded" {
		t.Errorf("got %q %q", kind, msg)
	}

	kind, _ = Classify(genai.APIError{Code: 503, Message: "overloaded"})
	if kind != KindProviderUnavailable {
		t.Errorf("got %q, want %q", kind, KindProviderUnavailable)
	}
}

// TestClassifyContext verifies context failures map to timeout.
func TestClassifyContext(t *testing.T) {
	if kind, _ := Classify(context.DeadlineExceeded); kind != KindTimeout {
		t.Errorf("deadline: got %q", kind)
	}
	if kind, _ := Classify(fmt.Errorf("call: %w", context.Canceled)); kind != KindTimeout {
		t.Errorf("canceled: got %q", kind)
	}
}

// TestClassifyTransport verifies connection-level failures map to
// provider_unavailable.
func TestClassifyTransport(t *testing.T) {
	err := &url.Error{Op: "Post", URL: "https://api.example.com", Err: errors.New("connection refused")}
	if kind, _ := Classify(err); kind != KindProviderUnavailable {
		t.Errorf("got %q, want %q", kind, KindProviderUnavailable)
	}
}

// TestClassifyUnknown verifies unrecognized errors fall through to unknown.
func TestClassifyUnknown(t *testing.T) {
	kind, msg := Classify(errors.New("something odd"))
	if kind != KindUnknown || msg != "something odd" {
		t.Errorf("got %q %q", kind, msg)
	}
}

// TestRetryable pins the retry policy surface of the taxonomy.
func TestRetryable(t *testing.T) {
	retryable := []ErrorKind{KindRateLimited, KindTimeout, KindProviderUnavailable}
	for _, kind := range retryable {
		if !kind.Retryable() {
			t.Errorf("%q must be retryable", kind)
		}
	}
	terminal := []ErrorKind{
		KindInvalidRequest, KindAuth, KindContentFiltered,
		KindMalformedFunctionPayload, KindUnknown,
	}
	for _, kind := range terminal {
		if kind.Retryable() {
			t.Errorf("%q must not be retryable", kind)
		}
	}
}
