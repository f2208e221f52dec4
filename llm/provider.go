// Provider interface and registry.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Streaming protocol differences
// - Provider-specific error shapes
//
// Adapters never return a Go error across this boundary: a failed Complete
// yields a canonical error Response, a failed Stream yields a terminal error
// chunk. Callers branch on Response.Error / StreamChunk.Error.

package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Provider is the uniform surface over one upstream LLM API.
type Provider interface {
	// Name returns the canonical provider name.
	Name() string

	// Complete executes a non-streaming request.
	Complete(ctx context.Context, req Request) Response

	// Stream executes a streaming request. The returned channel yields zero
	// or more delta chunks followed by exactly one terminal chunk, then
	// closes. A canceled context ends the stream early without a terminal
	// chunk.
	Stream(ctx context.Context, req Request) <-chan StreamChunk
}

var (
	// ErrUnknownProvider is returned when no adapter is registered under the
	// requested name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrDuplicateProvider is returned when a name is registered twice.
	ErrDuplicateProvider = errors.New("provider already registered")
)

// Registry maps canonical provider names to adapters. Registration happens
// during wiring; lookups are concurrent.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds an adapter under its canonical name.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.providers[name] = p
	return nil
}

// Resolve returns the adapter for a provider name or alias.
func (r *Registry) Resolve(name string) (Provider, error) {
	canonical, ok := CanonicalProviderName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, exists := r.providers[canonical]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
