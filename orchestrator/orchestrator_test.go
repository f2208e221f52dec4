package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/calyptra/relay/cache"
	"github.com/calyptra/relay/llm"
	"github.com/calyptra/relay/retry"
	"github.com/calyptra/relay/storage"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (linked in via genai's auth transport) starts a stats
	// worker at package init that never exits; it is not a leak from this
	// package.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// stubProvider scripts Complete responses (last one repeats) and streams
// a fixed delta sequence. All counters are goroutine-safe.
type stubProvider struct {
	name string

	mu          sync.Mutex
	calls       int
	streamCalls int

	script     []llm.Response
	deltas     []string
	streamFail llm.ErrorKind // fail the stream after the deltas when set
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req llm.Request) llm.Response {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if len(s.script) == 0 {
		content := "stub reply"
		return llm.Response{
			Content:      &content,
			FinishReason: llm.FinishStop,
			Usage:        &llm.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
			ModelName:    req.Model,
		}
	}
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]
}

func (s *stubProvider) Stream(ctx context.Context, req llm.Request) <-chan llm.StreamChunk {
	s.mu.Lock()
	s.streamCalls++
	s.mu.Unlock()

	asm := llm.NewAssembler(req.Model, llm.ModeDelta)
	go func() {
		defer asm.Close()
		for _, delta := range s.deltas {
			if !asm.Emit(ctx, delta) {
				return
			}
		}
		if s.streamFail != "" {
			asm.Fail(ctx, s.streamFail, "stream broke")
			return
		}
		asm.Finish(ctx, llm.FinishStop, nil, &llm.Usage{TotalTokens: 5})
	}()
	return asm.Chunks()
}

func (s *stubProvider) completeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubProvider) streamCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCalls
}

// countingPersister records every persisted exchange.
type countingPersister struct {
	mu        sync.Mutex
	persisted []llm.Response
}

func (p *countingPersister) Persist(ctx context.Context, req llm.Request, resp llm.Response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted = append(p.persisted, resp)
	return nil
}

func (p *countingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.persisted)
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1}
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, persist Persister) (*Orchestrator, *cache.ResponseCache) {
	t.Helper()
	registry := llm.NewRegistry()
	if err := registry.Register(provider); err != nil {
		t.Fatalf("Register: %v", err)
	}
	responseCache := cache.New(cache.NewMemoryStore(), cache.DefaultConfig())
	return New(Options{
		Registry: registry,
		Cache:    responseCache,
		Retry:    fastRetry(),
		Persist:  persist,
	}), responseCache
}

func openaiRequest(prompt string) llm.Request {
	return llm.Request{
		Provider: llm.ProviderOpenAI,
		Model:    llm.ModelOpenAIGPT4o,
		Messages: []llm.Message{llm.UserMessage(prompt)},
	}
}

// TestGenerateCacheShortCircuit verifies an identical repeat request is
// served from the cache without touching the provider again.
func TestGenerateCacheShortCircuit(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	orch, _ := newTestOrchestrator(t, stub, nil)
	ctx := context.Background()

	first := orch.Generate(ctx, openaiRequest("Hello"))
	if first.Error {
		t.Fatalf("Generate failed: %s", first.Message)
	}
	second := orch.Generate(ctx, openaiRequest("Hello"))

	if stub.completeCalls() != 1 {
		t.Errorf("provider calls = %d, want 1", stub.completeCalls())
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached response differs (-first +second):\n%s", diff)
	}

	// A different prompt is a different completion.
	orch.Generate(ctx, openaiRequest("Goodbye"))
	if stub.completeCalls() != 2 {
		t.Errorf("provider calls = %d after new prompt, want 2", stub.completeCalls())
	}
}

// TestGenerateRetriesTransient verifies two rate-limit failures followed
// by a success consume exactly three provider calls.
func TestGenerateRetriesTransient(t *testing.T) {
	content := "recovered"
	stub := &stubProvider{
		name: llm.ProviderOpenAI,
		script: []llm.Response{
			llm.ErrorResponse(llm.KindRateLimited, "429", llm.ModelOpenAIGPT4o),
			llm.ErrorResponse(llm.KindRateLimited, "429", llm.ModelOpenAIGPT4o),
			{Content: &content, FinishReason: llm.FinishStop, ModelName: llm.ModelOpenAIGPT4o},
		},
	}
	orch, _ := newTestOrchestrator(t, stub, nil)

	resp := orch.Generate(context.Background(), openaiRequest("Hello"))

	if resp.Error {
		t.Fatalf("Generate failed after retries: %s", resp.Message)
	}
	if resp.Text() != "recovered" {
		t.Errorf("content = %q, want %q", resp.Text(), "recovered")
	}
	if stub.completeCalls() != 3 {
		t.Errorf("provider calls = %d, want 3", stub.completeCalls())
	}
}

// TestGenerateAuthFailsFast verifies non-retryable failures consume one
// call and surface unchanged.
func TestGenerateAuthFailsFast(t *testing.T) {
	stub := &stubProvider{
		name:   llm.ProviderOpenAI,
		script: []llm.Response{llm.ErrorResponse(llm.KindAuth, "invalid api key", llm.ModelOpenAIGPT4o)},
	}
	persist := &countingPersister{}
	orch, responseCache := newTestOrchestrator(t, stub, persist)

	resp := orch.Generate(context.Background(), openaiRequest("Hello"))

	if !resp.Error || resp.Kind != llm.KindAuth {
		t.Fatalf("Generate = %+v, want the auth error", resp)
	}
	if stub.completeCalls() != 1 {
		t.Errorf("provider calls = %d, want 1", stub.completeCalls())
	}
	if persist.count() != 0 {
		t.Errorf("persisted %d error responses, want 0", persist.count())
	}
	stats, err := responseCache.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("cache entries = %d, want 0 (errors are never cached)", stats.Entries)
	}
}

// TestGeneratePersistExactlyOnce verifies one persistence call per
// request, cache hits included.
func TestGeneratePersistExactlyOnce(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	persist := &countingPersister{}
	orch, _ := newTestOrchestrator(t, stub, persist)
	ctx := context.Background()

	first := orch.Generate(ctx, openaiRequest("Hello"))
	if persist.count() != 1 {
		t.Fatalf("persisted = %d after first request, want 1", persist.count())
	}

	second := orch.Generate(ctx, openaiRequest("Hello"))
	if persist.count() != 2 {
		t.Errorf("persisted = %d after cache hit, want 2", persist.count())
	}
	if stub.completeCalls() != 1 {
		t.Errorf("provider calls = %d, want 1", stub.completeCalls())
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("persisted different responses (-first +second):\n%s", diff)
	}
}

// TestGenerateUnknownModel verifies routing failures come back as a
// canonical invalid-request response without touching any provider.
func TestGenerateUnknownModel(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	orch, _ := newTestOrchestrator(t, stub, nil)

	resp := orch.Generate(context.Background(), llm.Request{
		Model:    "mystery-9000",
		Messages: []llm.Message{llm.UserMessage("Hello")},
	})

	if !resp.Error || resp.Kind != llm.KindInvalidRequest {
		t.Fatalf("Generate = %+v, want an invalid_request error", resp)
	}
	if stub.completeCalls() != 0 {
		t.Errorf("provider calls = %d, want 0", stub.completeCalls())
	}
}

// TestGenerateUnregisteredProvider verifies a known provider name without
// a registered adapter is rejected the same way.
func TestGenerateUnregisteredProvider(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	orch, _ := newTestOrchestrator(t, stub, nil)

	req := llm.Request{
		Provider: llm.ProviderGemini,
		Model:    llm.ModelGeminiFlash25,
		Messages: []llm.Message{llm.UserMessage("Hello")},
	}
	resp := orch.Generate(context.Background(), req)

	if !resp.Error || resp.Kind != llm.KindInvalidRequest {
		t.Fatalf("Generate = %+v, want an invalid_request error", resp)
	}
}

// TestGenerateProviderInference verifies a prefixed model routes without
// an explicit provider and shares cache entries with the explicit form.
func TestGenerateProviderInference(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	orch, _ := newTestOrchestrator(t, stub, nil)
	ctx := context.Background()

	resp := orch.Generate(ctx, llm.Request{
		Model:    "openai/" + llm.ModelOpenAIGPT4o,
		Messages: []llm.Message{llm.UserMessage("Hello")},
	})
	if resp.Error {
		t.Fatalf("Generate failed: %s", resp.Message)
	}
	if resp.ModelName != llm.ModelOpenAIGPT4o {
		t.Errorf("model = %q, want the bare model after prefix stripping", resp.ModelName)
	}

	orch.Generate(ctx, openaiRequest("Hello"))
	if stub.completeCalls() != 1 {
		t.Errorf("provider calls = %d, want 1 (prefixed and explicit forms share a cache key)", stub.completeCalls())
	}
}

// TestGenerateStreamDelivery verifies ordering, accumulation,
// exactly-one-final, and post-stream persistence.
func TestGenerateStreamDelivery(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI, deltas: []string{"Str", "eam", " on"}}
	persist := &countingPersister{}
	orch, _ := newTestOrchestrator(t, stub, persist)

	var chunks []llm.StreamChunk
	for chunk := range orch.GenerateStream(context.Background(), openaiRequest("Hello")) {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 3 deltas and a final", len(chunks))
	}

	finals := 0
	var text string
	for _, chunk := range chunks {
		if chunk.IsFinal {
			finals++
		}
		if chunk.Delta != nil {
			text += *chunk.Delta
		}
	}
	if finals != 1 {
		t.Errorf("final chunks = %d, want exactly 1", finals)
	}
	if !chunks[len(chunks)-1].IsFinal {
		t.Error("terminal chunk must be the last one")
	}
	if text != "Stream on" {
		t.Errorf("concatenated deltas = %q, want %q", text, "Stream on")
	}

	last := chunks[len(chunks)-1]
	if last.AccumulatedContent == nil || *last.AccumulatedContent != "Stream on" {
		t.Errorf("accumulated content = %v, want %q", last.AccumulatedContent, "Stream on")
	}

	if persist.count() != 1 {
		t.Fatalf("persisted = %d, want 1", persist.count())
	}
	persisted := persist.persisted[0]
	if persisted.Text() != "Stream on" {
		t.Errorf("persisted content = %q, want the full text", persisted.Text())
	}
	if persisted.FinishReason != llm.FinishStop {
		t.Errorf("persisted finish reason = %s, want STOP", persisted.FinishReason)
	}
}

// TestGenerateStreamBypassesCache verifies streams neither read nor warm
// the response cache.
func TestGenerateStreamBypassesCache(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI, deltas: []string{"live"}}
	orch, responseCache := newTestOrchestrator(t, stub, nil)
	ctx := context.Background()

	orch.Generate(ctx, openaiRequest("Hello"))

	for range orch.GenerateStream(ctx, openaiRequest("Hello")) {
	}

	if stub.streamCallCount() != 1 {
		t.Errorf("stream calls = %d, want 1 (no cache short-circuit for streams)", stub.streamCallCount())
	}
	stats, err := responseCache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("cache entries = %d, want only the non-streaming one", stats.Entries)
	}
}

// TestGenerateStreamResolveFailure verifies routing failures surface as a
// single terminal error chunk.
func TestGenerateStreamResolveFailure(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	persist := &countingPersister{}
	orch, _ := newTestOrchestrator(t, stub, persist)

	var chunks []llm.StreamChunk
	for chunk := range orch.GenerateStream(context.Background(), llm.Request{
		Model:    "mystery-9000",
		Messages: []llm.Message{llm.UserMessage("Hello")},
	}) {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want exactly one terminal chunk", len(chunks))
	}
	chunk := chunks[0]
	if !chunk.Error || !chunk.IsFinal || chunk.Kind != llm.KindInvalidRequest {
		t.Errorf("chunk = %+v, want a final invalid_request error", chunk)
	}
	if persist.count() != 0 {
		t.Errorf("persisted = %d, want 0", persist.count())
	}
}

// TestGenerateStreamErrorNotPersisted verifies failed streams end with a
// terminal error chunk and skip persistence.
func TestGenerateStreamErrorNotPersisted(t *testing.T) {
	stub := &stubProvider{
		name:       llm.ProviderOpenAI,
		deltas:     []string{"partial"},
		streamFail: llm.KindProviderUnavailable,
	}
	persist := &countingPersister{}
	orch, _ := newTestOrchestrator(t, stub, persist)

	var last llm.StreamChunk
	count := 0
	for chunk := range orch.GenerateStream(context.Background(), openaiRequest("Hello")) {
		last = chunk
		count++
	}

	if count != 2 {
		t.Fatalf("got %d chunks, want a delta and a terminal error", count)
	}
	if !last.Error || !last.IsFinal || last.Kind != llm.KindProviderUnavailable {
		t.Errorf("terminal chunk = %+v, want a provider_unavailable error", last)
	}
	if persist.count() != 0 {
		t.Errorf("persisted = %d, want 0", persist.count())
	}
}

// TestGenerateStreamConsumerCancel verifies cancellation ends the stream
// without a terminal chunk and without persisting.
func TestGenerateStreamConsumerCancel(t *testing.T) {
	stub := &stubProvider{
		name:   llm.ProviderOpenAI,
		deltas: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z"},
	}
	persist := &countingPersister{}
	orch, _ := newTestOrchestrator(t, stub, persist)

	ctx, cancel := context.WithCancel(context.Background())
	stream := orch.GenerateStream(ctx, openaiRequest("Hello"))

	<-stream
	cancel()

	sawFinal := false
	for chunk := range stream {
		if chunk.IsFinal {
			sawFinal = true
		}
	}

	if sawFinal {
		t.Error("canceled stream must not deliver a terminal chunk")
	}
	if persist.count() != 0 {
		t.Errorf("persisted = %d, want 0 for a canceled stream", persist.count())
	}
}

// TestEndToEndWithSqlite runs the full pipeline against the SQLite store:
// generate, hit the cache, and check exactly one row per request.
func TestEndToEndWithSqlite(t *testing.T) {
	store, err := storage.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("NewSqliteInMemory: %v", err)
	}
	defer store.Close()

	const session = "e2e-session"
	persist := PersistFunc(func(ctx context.Context, req llm.Request, resp llm.Response) error {
		rec := storage.AssistantRecord(session, req.Provider, resp)
		return store.AppendMessage(ctx, &rec)
	})

	stub := &stubProvider{name: llm.ProviderOpenAI}
	orch, _ := newTestOrchestrator(t, stub, persist)
	ctx := context.Background()

	first := orch.Generate(ctx, openaiRequest("Hello"))
	if first.Error {
		t.Fatalf("Generate failed: %s", first.Message)
	}
	orch.Generate(ctx, openaiRequest("Hello"))

	records, err := store.Messages(ctx, session)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("persisted rows = %d, want one per request", len(records))
	}
	for _, rec := range records {
		if rec.Content != "stub reply" {
			t.Errorf("persisted content = %q, want %q", rec.Content, "stub reply")
		}
		if rec.Provider != llm.ProviderOpenAI {
			t.Errorf("persisted provider = %q", rec.Provider)
		}
	}
	if stub.completeCalls() != 1 {
		t.Errorf("provider calls = %d, want 1", stub.completeCalls())
	}
}

// TestInvalidateAndStats verifies the admin surface counts and clears
// entries through the orchestrator.
func TestInvalidateAndStats(t *testing.T) {
	stub := &stubProvider{name: llm.ProviderOpenAI}
	orch, _ := newTestOrchestrator(t, stub, nil)
	ctx := context.Background()

	orch.Generate(ctx, openaiRequest("Hello"))
	orch.Generate(ctx, openaiRequest("Goodbye"))

	stats, err := orch.CacheStats(ctx)
	if err != nil {
		t.Fatalf("CacheStats: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("entries = %d, want 2", stats.Entries)
	}

	removed, err := orch.InvalidateModel(ctx, llm.ModelOpenAIGPT4o)
	if err != nil {
		t.Fatalf("InvalidateModel: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	orch.Generate(ctx, openaiRequest("Hello"))
	if stub.completeCalls() != 3 {
		t.Errorf("provider calls = %d, want 3 (invalidation forces a refetch)", stub.completeCalls())
	}
}
