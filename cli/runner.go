// Command execution for CLI commands.
//
// Information Hiding:
// - Orchestrator wiring (registry, cache, retry, persistence) hidden
// - Config precedence (flags over file over environment) hidden
// - Session history handling and output formatting hidden

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gosuri/uitable"

	"github.com/calyptra/relay/cache"
	"github.com/calyptra/relay/config"
	"github.com/calyptra/relay/internal/jsonx"
	"github.com/calyptra/relay/llm"
	"github.com/calyptra/relay/orchestrator"
	"github.com/calyptra/relay/retry"
	"github.com/calyptra/relay/storage"
)

// Options holds CLI execution options.
type Options struct {
	Provider    string
	Model       string
	System      string
	Temperature *float32 // nil means use the configured default
	MaxTokens   uint32   // 0 means use the configured default
	Stream      bool
	SessionID   string
	DBPath      string
	ConfigPath  string
	JSONOutput  bool
	NoCache     bool
	Timeout     time.Duration // 0 means use the configured default
	Verbose     bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		DBPath: ".relay/relay.db",
	}
}

// Generate sends a single prompt and prints the reply.
func Generate(ctx context.Context, prompt string, opts Options) error {
	configureLogging(opts.Verbose)

	env, err := createEnvironment(opts)
	if err != nil {
		return err
	}
	defer env.cleanup()

	conversation, err := env.loadHistory(ctx)
	if err != nil {
		return err
	}
	conversation = append(conversation, llm.UserMessage(prompt))
	env.saveUserTurn(ctx, prompt)

	req := env.request(conversation)

	// JSON extraction needs the complete reply.
	if opts.Stream && !opts.JSONOutput {
		final, err := streamTo(os.Stdout, env.orch.GenerateStream(ctx, req))
		if err != nil {
			return err
		}
		fmt.Println()
		printUsage(final.Usage, opts.Verbose)
		return nil
	}

	resp := env.orch.Generate(ctx, req)
	if resp.Error {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Message)
		return fmt.Errorf("request failed: %s", resp.Kind)
	}

	switch {
	case opts.JSONOutput:
		extracted, err := jsonx.Extract(resp.Text())
		if err != nil {
			return err
		}
		fmt.Println(extracted)
	case resp.FunctionCall != nil:
		printFunctionCall(resp.FunctionCall)
	default:
		fmt.Println(resp.Text())
	}
	printUsage(resp.Usage, opts.Verbose)
	return nil
}

// Chat starts an interactive chat session.
func Chat(ctx context.Context, opts Options) error {
	configureLogging(opts.Verbose)

	if opts.SessionID == "" {
		opts.SessionID = "default"
	}

	env, err := createEnvironment(opts)
	if err != nil {
		return err
	}
	defer env.cleanup()

	conversation, err := env.loadHistory(ctx)
	if err != nil {
		return err
	}
	if len(conversation) > 0 {
		fmt.Printf("Resuming session '%s' (%d messages)\n\n", env.session, len(conversation))
	}

	fmt.Printf("Chat with %s/%s. Type 'exit' to quit.\n\n", env.provider, env.model)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if strings.HasPrefix(input, "/") {
			runChatCommand(ctx, env, input)
			continue
		}

		turn := make([]llm.Message, len(conversation), len(conversation)+2)
		copy(turn, conversation)
		turn = append(turn, llm.UserMessage(input))
		env.saveUserTurn(ctx, input)

		req := env.request(turn)

		var reply string
		if opts.Stream {
			fmt.Println()
			final, err := streamTo(os.Stdout, env.orch.GenerateStream(ctx, req))
			if err != nil {
				fmt.Fprintln(os.Stderr)
				continue
			}
			fmt.Printf("\n\n")
			reply = final.Final().Text()
		} else {
			resp := env.orch.Generate(ctx, req)
			if resp.Error {
				fmt.Fprintf(os.Stderr, "\nError: %s\n\n", resp.Message)
				continue
			}
			fmt.Printf("\n%s\n\n", resp.Text())
			reply = resp.Text()
		}

		conversation = append(turn, llm.AssistantMessage(reply))
	}

	return scanner.Err()
}

// Models prints the provider table with key status.
func Models(opts Options) error {
	keys := config.AvailableAPIKeys()
	file, hasFile, err := config.LoadIfPresent(opts.ConfigPath)
	if err != nil {
		return err
	}
	if hasFile {
		keys = file.MergeAPIKeys(keys)
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.Separator = "   "
	table.AddRow("PROVIDER", "DEFAULT MODEL", "API KEY", "CONFIGURED")
	for _, name := range config.SupportedProviders() {
		model, err := config.ModelFor(name)
		if err != nil {
			return err
		}
		envVar, err := config.APIKeyEnvFor(name)
		if err != nil {
			return err
		}
		configured := "no"
		if keys[name] != "" {
			configured = "yes"
		}
		table.AddRow(name, model, envVar, configured)
	}
	fmt.Println(table.String())
	return nil
}

// runChatCommand serves the in-session admin commands.
func runChatCommand(ctx context.Context, env *environment, input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/stats":
		stats, err := env.orch.CacheStats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Cached responses: %d\n", stats.Entries)
		models := make([]string, 0, len(stats.ByModel))
		for model := range stats.ByModel {
			models = append(models, model)
		}
		sort.Strings(models)
		for _, model := range models {
			fmt.Printf("  %s: %d\n", model, stats.ByModel[model])
		}
	case "/invalidate":
		if len(fields) != 2 {
			fmt.Println("Usage: /invalidate <model>")
			return
		}
		removed, err := env.orch.InvalidateModel(ctx, fields[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Dropped %d cached responses for %s\n", removed, fields[1])
	default:
		fmt.Printf("Unknown command %s. Available: /stats, /invalidate <model>\n", fields[0])
	}
}

// environment is the wired run state for one CLI invocation.
type environment struct {
	orch        *orchestrator.Orchestrator
	store       storage.MessageStore
	session     string
	provider    string
	model       string
	system      string
	temperature *float32
	maxTokens   int
	cleanup     func()
}

// createEnvironment resolves configuration and wires the orchestrator.
// Every knob resolves flags over config file over environment variables
// over built-in defaults.
func createEnvironment(opts Options) (*environment, error) {
	file, hasFile, err := config.LoadIfPresent(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	providerName, pinned, err := pickProvider(opts, file, hasFile)
	if err != nil {
		return nil, err
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, err
	}
	if hasFile {
		if pinned {
			// The command line chose the provider; the file still
			// contributes its per-provider model overrides.
			file.Defaults = config.FileDefaults{}
		}
		settings = file.MergeSettings(settings)
	}

	model, err := resolveModel(opts, settings)
	if err != nil {
		return nil, err
	}

	keys := config.AvailableAPIKeys()
	if hasFile {
		keys = file.MergeAPIKeys(keys)
	}
	if keys[settings.LLM.Provider] == "" {
		envVar, err := config.APIKeyEnvFor(settings.LLM.Provider)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no API key for provider %s: set %s or add it to %s",
			settings.LLM.Provider, envVar, config.DefaultFileName)
	}

	registry, err := llm.BuildRegistry(keys)
	if err != nil {
		return nil, err
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Enabled = settings.Cache.Enabled && !opts.NoCache
	cacheCfg.DefaultTTL = settings.Cache.TTL
	cacheCfg.CacheWithFunctions = settings.Cache.CacheWithFunctions

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = settings.Retry.MaxAttempts
	policy.BaseDelay = settings.Retry.BaseDelay
	policy.Multiplier = settings.Retry.Multiplier
	policy.Jitter = settings.Retry.Jitter

	timeout := settings.RequestTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	env := &environment{
		session:     opts.SessionID,
		provider:    settings.LLM.Provider,
		model:       model,
		system:      opts.System,
		temperature: llm.Temp(float32(settings.LLM.Temperature)),
		maxTokens:   int(settings.LLM.MaxTokens),
		cleanup:     func() {},
	}
	if opts.Temperature != nil {
		env.temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		env.maxTokens = int(opts.MaxTokens)
	}

	var persist orchestrator.Persister
	if opts.SessionID != "" {
		store, err := storage.OpenSqlite(opts.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		env.store = store
		env.cleanup = func() { _ = store.Close() }
		session := opts.SessionID
		persist = orchestrator.PersistFunc(func(ctx context.Context, req llm.Request, resp llm.Response) error {
			rec := storage.AssistantRecord(session, req.Provider, resp)
			return store.AppendMessage(ctx, &rec)
		})
	}

	env.orch = orchestrator.New(orchestrator.Options{
		Registry: registry,
		Cache:    cache.New(cache.NewMemoryStore(), cacheCfg),
		Retry:    policy,
		Persist:  persist,
		Timeout:  timeout,
	})
	return env, nil
}

// pickProvider resolves which provider serves the request. The flag wins,
// then a recognizable model name, then the config file default.
func pickProvider(opts Options, file config.File, hasFile bool) (name string, pinned bool, err error) {
	if opts.Provider != "" {
		return opts.Provider, true, nil
	}
	if opts.Model != "" {
		if provider, _, ok := llm.InferProvider(opts.Model); ok {
			return provider, true, nil
		}
	}
	if hasFile && file.Defaults.Provider != "" {
		return file.Defaults.Provider, false, nil
	}
	return "", false, fmt.Errorf("no provider selected: pass --provider, a provider-qualified --model, or set defaults.provider in %s", config.DefaultFileName)
}

// resolveModel applies the model flag over the configured default and
// rejects a model that routes to a different provider than the one chosen.
func resolveModel(opts Options, settings config.Settings) (string, error) {
	if opts.Model == "" {
		return settings.LLM.Model, nil
	}
	provider, bare, ok := llm.InferProvider(opts.Model)
	if ok && provider != settings.LLM.Provider {
		return "", fmt.Errorf("model %q routes to provider %s, not %s", opts.Model, provider, settings.LLM.Provider)
	}
	return bare, nil
}

// request assembles the outgoing request from the wired defaults and the
// conversation so far.
func (e *environment) request(conversation []llm.Message) llm.Request {
	messages := make([]llm.Message, 0, len(conversation)+1)
	if e.system != "" {
		messages = append(messages, llm.SystemMessage(e.system))
	}
	messages = append(messages, conversation...)
	return llm.Request{
		Provider:    e.provider,
		Model:       e.model,
		Messages:    messages,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	}
}

// loadHistory restores prior turns for the session, or nothing when no
// session store is wired.
func (e *environment) loadHistory(ctx context.Context) ([]llm.Message, error) {
	if e.store == nil {
		return nil, nil
	}
	records, err := e.store.Messages(ctx, e.session)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return storage.History(records), nil
}

// saveUserTurn records what the user asked. Assistant replies are recorded
// by the orchestrator's persistence hook.
func (e *environment) saveUserTurn(ctx context.Context, content string) {
	if e.store == nil {
		return
	}
	rec := storage.UserRecord(e.session, content)
	if err := e.store.AppendMessage(ctx, &rec); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save message: %v\n", err)
	}
}

// streamTo prints deltas as they arrive and returns the final chunk.
func streamTo(w io.Writer, chunks <-chan llm.StreamChunk) (llm.StreamChunk, error) {
	var final *llm.StreamChunk
	for chunk := range chunks {
		if chunk.Error {
			fmt.Fprintf(os.Stderr, "\nError: %s\n", chunk.Message)
			for range chunks {
			}
			return llm.StreamChunk{}, fmt.Errorf("stream failed: %s", chunk.Kind)
		}
		if chunk.IsFinal {
			c := chunk
			final = &c
			continue
		}
		if chunk.Delta != nil {
			fmt.Fprint(w, *chunk.Delta)
		}
	}
	if final == nil {
		return llm.StreamChunk{}, fmt.Errorf("stream ended without a final chunk")
	}
	return *final, nil
}

func printFunctionCall(fc *llm.FunctionCall) {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = []byte("{}")
	}
	fmt.Printf("Function call: %s(%s)\n", fc.Name, args)
}

func printUsage(usage *llm.Usage, verbose bool) {
	if !verbose || usage == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "(%d prompt + %d completion = %d tokens)\n",
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
}

// configureLogging routes library logs to stderr. Verbose mode surfaces
// the per-request debug entries from the orchestrator and cache.
func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
