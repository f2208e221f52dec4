// Package retry re-issues provider calls that failed with a transient
// error, waiting an exponentially growing, jittered delay between
// attempts. Whether an error is transient is decided by its canonical
// kind, never by the provider that produced it.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/calyptra/relay/llm"
)

// Policy holds the tuning parameters for the retry loop.
type Policy struct {
	// MaxAttempts is the total number of provider calls, counting the
	// first one. Values below 1 behave as 1.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Successive waits
	// grow by Multiplier.
	BaseDelay time.Duration

	// Multiplier is the exponential growth factor. Values below 1 behave
	// as 1 (constant delay).
	Multiplier float64

	// Jitter randomizes each wait by the given fraction in both
	// directions, so 0.1 yields delays in [0.9d, 1.1d].
	Jitter float64

	// MaxDelay caps the computed wait before jitter is applied. Zero
	// means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy returns the standard production policy: three attempts,
// 500ms base delay doubling per attempt, 10% jitter, 30s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.1,
		MaxDelay:    30 * time.Second,
	}
}

// backoff returns the wait after the given failed attempt (1-indexed):
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay), randomized ±Jitter.
func (p Policy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if ceiling := float64(p.MaxDelay); ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do invokes op until it returns a non-error response, a non-retryable
// error, or the attempt budget runs out. The last response is returned
// unchanged on exhaustion, so callers always see what the provider
// actually said. If ctx is cancelled during a wait, Do stops retrying
// and returns the last response.
//
// Do never wraps streaming calls: once partial output has reached a
// consumer it cannot be re-delivered.
func Do(ctx context.Context, p Policy, op func(context.Context) llm.Response) llm.Response {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var resp llm.Response
	for attempt := 1; ; attempt++ {
		resp = op(ctx)
		if !resp.Error || !resp.Kind.Retryable() || attempt >= attempts {
			return resp
		}

		delay := p.backoff(attempt)
		slog.Debug("retrying provider call",
			"attempt", attempt,
			"max_attempts", attempts,
			"kind", string(resp.Kind),
			"delay", delay)

		select {
		case <-ctx.Done():
			return resp
		case <-time.After(delay):
		}
	}
}
