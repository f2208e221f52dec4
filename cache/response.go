// ResponseCache: the policy layer deciding what is cacheable and for how
// long.
//
// Never cached: streaming requests (their value is the delta sequence, not
// the final text), error responses, and, unless explicitly enabled,
// requests that declare functions (a cached FUNCTION_CALL answer would
// short-circuit the caller's own function-execution loop).
//
// Store failures never fail a request; they degrade to a miss and a log
// line.

package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/calyptra/relay/llm"
)

// Config controls cache behavior.
type Config struct {
	// Enabled turns the cache on. A disabled cache misses on every lookup
	// and stores nothing.
	Enabled bool
	// DefaultTTL applies to providers without an entry in ProviderTTL.
	DefaultTTL time.Duration
	// ProviderTTL overrides the TTL per canonical provider name.
	ProviderTTL map[string]time.Duration
	// CacheWithFunctions lets function-bearing requests be cached.
	CacheWithFunctions bool
}

// DefaultConfig returns the stock cache policy: enabled, one hour default
// TTL, two hours for the hosted providers.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: time.Hour,
		ProviderTTL: map[string]time.Duration{
			llm.ProviderOpenAI:    2 * time.Hour,
			llm.ProviderAnthropic: 2 * time.Hour,
			llm.ProviderGemini:    2 * time.Hour,
		},
	}
}

// Stats reports cache occupancy.
type Stats struct {
	Entries int            `json:"entries"`
	ByModel map[string]int `json:"by_model"`
}

// ResponseCache caches canonical responses keyed by request fingerprint.
type ResponseCache struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// New creates a response cache over a store.
func New(store Store, cfg Config) *ResponseCache {
	return &ResponseCache{
		store:  store,
		cfg:    cfg,
		logger: slog.With("component", "cache"),
	}
}

// Lookup returns the cached response for a request, if one exists and the
// request is cacheable at all.
func (c *ResponseCache) Lookup(ctx context.Context, req llm.Request) (llm.Response, bool) {
	if !c.cacheable(req) {
		return llm.Response{}, false
	}

	key := Key(req.Model, Fingerprint(req))
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "key", key, "error", err)
		return llm.Response{}, false
	}
	if !ok {
		return llm.Response{}, false
	}

	var resp llm.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		if _, err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("cache delete failed", "key", key, "error", err)
		}
		return llm.Response{}, false
	}

	c.logger.Debug("cache hit", "model", req.Model)
	return resp, true
}

// StoreResponse records a response for a request when policy allows.
func (c *ResponseCache) StoreResponse(ctx context.Context, req llm.Request, resp llm.Response) {
	if !c.cacheable(req) || resp.Error {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache encode failed", "model", req.Model, "error", err)
		return
	}

	key := Key(req.Model, Fingerprint(req))
	if err := c.store.Set(ctx, key, data, c.ttlFor(req.Provider)); err != nil {
		c.logger.Warn("cache store failed", "key", key, "error", err)
	}
}

// Invalidate removes every entry for a model, returning how many were
// removed.
func (c *ResponseCache) Invalidate(ctx context.Context, model string) (int, error) {
	keys, err := c.store.Keys(ctx, ModelPrefix(model))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := c.store.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}
	c.logger.Info("cache invalidated", "model", model, "removed", removed)
	return removed, nil
}

// Stats counts entries per model.
func (c *ResponseCache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.store.Keys(ctx, keyPrefix)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Entries: len(keys), ByModel: make(map[string]int)}
	for _, key := range keys {
		rest := strings.TrimPrefix(key, keyPrefix)
		// Model identifiers never contain ":"; the fingerprint follows the
		// last separator.
		if i := strings.LastIndexByte(rest, ':'); i > 0 {
			stats.ByModel[rest[:i]]++
		}
	}
	return stats, nil
}

func (c *ResponseCache) cacheable(req llm.Request) bool {
	if !c.cfg.Enabled || req.Stream {
		return false
	}
	if len(req.Functions) > 0 && !c.cfg.CacheWithFunctions {
		return false
	}
	return true
}

func (c *ResponseCache) ttlFor(provider string) time.Duration {
	if ttl, ok := c.cfg.ProviderTTL[provider]; ok {
		return ttl
	}
	return c.cfg.DefaultTTL
}
