// Package orchestrator runs the request pipeline: provider resolution,
// cache lookup, retry-wrapped dispatch, cache store, and persistence.
//
// Information Hiding:
// - Pipeline ordering and short-circuit rules live here, nowhere else
// - Collaborators (cache, store, providers) are swappable via Options
// - Callers see only canonical responses, never pipeline internals
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calyptra/relay/cache"
	"github.com/calyptra/relay/llm"
	"github.com/calyptra/relay/retry"
)

// defaultTimeout bounds one request end to end, including every retry
// attempt and, for streams, the full delivery.
const defaultTimeout = 120 * time.Second

const streamBuffer = 16

// Persister receives each completed request with its finalized response,
// exactly once. Error responses are never persisted.
type Persister interface {
	Persist(ctx context.Context, req llm.Request, resp llm.Response) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(ctx context.Context, req llm.Request, resp llm.Response) error

// Persist calls f.
func (f PersistFunc) Persist(ctx context.Context, req llm.Request, resp llm.Response) error {
	return f(ctx, req, resp)
}

// Options configures an Orchestrator. Registry is required; everything
// else is optional and off (or defaulted) when zero.
type Options struct {
	Registry *llm.Registry

	// Cache short-circuits repeat non-streaming requests. Nil disables
	// caching entirely.
	Cache *cache.ResponseCache

	// Retry is the backoff policy for transient provider failures. The
	// zero value selects retry.DefaultPolicy.
	Retry retry.Policy

	// Persist, when set, receives every completed request exactly once.
	Persist Persister

	// Timeout is the hard ceiling per request. Zero selects the 120s
	// default; negative disables the ceiling.
	Timeout time.Duration

	Logger *slog.Logger
}

// Orchestrator coordinates one generation request through the pipeline.
// Safe for concurrent use.
type Orchestrator struct {
	registry *llm.Registry
	cache    *cache.ResponseCache
	retry    retry.Policy
	persist  Persister
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an orchestrator from opts.
func New(opts Options) *Orchestrator {
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		registry: opts.Registry,
		cache:    opts.Cache,
		retry:    opts.Retry,
		persist:  opts.Persist,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With("component", "orchestrator"),
	}
}

// Generate executes a non-streaming request: cache lookup, retry-wrapped
// provider call, cache store, persistence. The returned response is
// always well formed; failures arrive as canonical error responses.
func (o *Orchestrator) Generate(ctx context.Context, req llm.Request) llm.Response {
	req.Stream = false

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	provider, req, fail := o.resolve(req)
	if fail != nil {
		return *fail
	}

	if o.cache != nil {
		if resp, ok := o.cache.Lookup(ctx, req); ok {
			o.logger.Debug("serving from cache", "provider", req.Provider, "model", req.Model)
			o.persistResponse(ctx, req, resp)
			return resp
		}
	}

	o.logger.Debug("dispatching request", "provider", req.Provider, "model", req.Model)
	resp := retry.Do(ctx, o.retry, func(ctx context.Context) llm.Response {
		return provider.Complete(ctx, req)
	})

	if resp.Error {
		o.logger.Warn("request failed",
			"provider", req.Provider,
			"model", req.Model,
			"kind", string(resp.Kind),
			"message", resp.Message)
		return resp
	}

	if o.cache != nil {
		o.cache.StoreResponse(ctx, req, resp)
	}
	o.persistResponse(ctx, req, resp)
	return resp
}

// GenerateStream executes a streaming request. Streams bypass the cache
// and the retry policy: partial output cannot be replayed. The returned
// channel yields zero or more delta chunks followed by exactly one
// terminal chunk, then closes; cancellation ends it early without a
// terminal chunk. Persistence happens once, after the terminal chunk,
// and only for completed non-error streams.
func (o *Orchestrator) GenerateStream(ctx context.Context, req llm.Request) <-chan llm.StreamChunk {
	req.Stream = true
	out := make(chan llm.StreamChunk, streamBuffer)

	provider, req, fail := o.resolve(req)
	if fail != nil {
		out <- llm.ErrorChunk(fail.Kind, fail.Message, fail.ModelName)
		close(out)
		return out
	}

	ctx, cancel := o.withTimeout(ctx)
	o.logger.Debug("dispatching stream", "provider", req.Provider, "model", req.Model)
	upstream := provider.Stream(ctx, req)

	go func() {
		defer close(out)
		defer cancel()

		var final *llm.StreamChunk
		for chunk := range upstream {
			if chunk.IsFinal {
				c := chunk
				final = &c
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Consumer gone. Drain so the producer can finish closing.
				for range upstream {
				}
				return
			}
		}

		if final == nil {
			return // canceled upstream, nothing completed
		}
		if final.Error {
			o.logger.Warn("stream failed",
				"provider", req.Provider,
				"model", req.Model,
				"kind", string(final.Kind),
				"message", final.Message)
			return
		}
		o.persistResponse(ctx, req, final.Final())
	}()

	return out
}

// InvalidateModel removes all cached responses for a model and reports
// how many were dropped. Without a cache it is a no-op.
func (o *Orchestrator) InvalidateModel(ctx context.Context, model string) (int, error) {
	if o.cache == nil {
		return 0, nil
	}
	return o.cache.Invalidate(ctx, model)
}

// CacheStats reports cache occupancy. Without a cache it reports zero
// entries.
func (o *Orchestrator) CacheStats(ctx context.Context) (cache.Stats, error) {
	if o.cache == nil {
		return cache.Stats{}, nil
	}
	return o.cache.Stats(ctx)
}

// resolve picks the adapter for req, normalizing the provider name and
// stripping a provider prefix from the model when the provider was
// inferred. The normalized request is returned so cache keys do not
// depend on how the caller spelled the provider.
func (o *Orchestrator) resolve(req llm.Request) (llm.Provider, llm.Request, *llm.Response) {
	name := req.Provider
	if name == "" {
		provider, bare, ok := llm.InferProvider(req.Model)
		if !ok {
			resp := llm.ErrorResponse(llm.KindInvalidRequest,
				fmt.Sprintf("cannot route model %q: unknown provider", req.Model), req.Model)
			return nil, req, &resp
		}
		name = provider
		req.Model = bare
	}

	if canonical, ok := llm.CanonicalProviderName(name); ok {
		name = canonical
	}
	req.Provider = name

	if o.registry == nil {
		resp := llm.ErrorResponse(llm.KindInvalidRequest, "no providers configured", req.Model)
		return nil, req, &resp
	}
	provider, err := o.registry.Resolve(name)
	if err != nil {
		resp := llm.ErrorResponse(llm.KindInvalidRequest, err.Error(), req.Model)
		return nil, req, &resp
	}
	return provider, req, nil
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// persistResponse hands the completed exchange to the persister. Failures
// are logged, never propagated: persistence must not fail a request that
// already succeeded.
func (o *Orchestrator) persistResponse(ctx context.Context, req llm.Request, resp llm.Response) {
	if o.persist == nil || resp.Error {
		return
	}
	if err := o.persist.Persist(ctx, req, resp); err != nil {
		o.logger.Warn("persistence failed", "model", req.Model, "error", err)
	}
}
