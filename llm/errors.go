// Error taxonomy and provider error classification.
//
// Adapters never let an SDK error cross the package boundary. Every failure
// is classified into an ErrorKind and wrapped into a canonical error
// Response (or terminal StreamChunk), so callers branch on Kind instead of
// unwrapping provider-specific types.

package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindRateLimited             ErrorKind = "rate_limited"
	KindTimeout                 ErrorKind = "timeout"
	KindInvalidRequest          ErrorKind = "invalid_request"
	KindAuth                    ErrorKind = "auth"
	KindContentFiltered         ErrorKind = "content_filtered"
	KindProviderUnavailable     ErrorKind = "provider_unavailable"
	KindMalformedFunctionPayload ErrorKind = "malformed_function_payload"
	KindUnknown                 ErrorKind = "unknown"
)

// Retryable reports whether a request failing with this kind may succeed on
// a later attempt. Auth and validation failures are deterministic and must
// not be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindProviderUnavailable:
		return true
	}
	return false
}

// Classify maps an SDK or transport error to its canonical kind and a
// human-readable message. It understands the error types of all bundled
// SDKs plus context and net failures; anything else is KindUnknown.
func Classify(err error) (ErrorKind, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, "request deadline exceeded"
	}
	if errors.Is(err, context.Canceled) {
		return KindTimeout, "request canceled"
	}

	var oaiAPIErr *openai.APIError
	if errors.As(err, &oaiAPIErr) {
		if code, ok := oaiAPIErr.Code.(string); ok && code == "content_filter" {
			return KindContentFiltered, oaiAPIErr.Message
		}
		if oaiAPIErr.Type == "insufficient_quota" {
			return KindRateLimited, oaiAPIErr.Message
		}
		return kindForStatus(oaiAPIErr.HTTPStatusCode), oaiAPIErr.Message
	}
	var oaiReqErr *openai.RequestError
	if errors.As(err, &oaiReqErr) {
		return kindForStatus(oaiReqErr.HTTPStatusCode), err.Error()
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return kindForStatus(anthErr.StatusCode), err.Error()
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return kindForStatus(genaiErr.Code), genaiErr.Message
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, err.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindProviderUnavailable, err.Error()
	}

	return KindUnknown, err.Error()
}

// kindForStatus maps an HTTP status to an ErrorKind. 529 is Anthropic's
// overloaded status.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return KindProviderUnavailable
	}
	if status >= 500 {
		return KindProviderUnavailable
	}
	return KindUnknown
}
