// Package main provides the relay CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/calyptra/relay/cli"
)

var (
	// Global flags
	provider   string
	configPath string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "One client for many LLM providers",
		Long: `Relay routes chat completions to OpenAI, Anthropic, DeepSeek and Gemini
through a single request shape, with response caching, retries with
backoff, streaming and session persistence.

The provider is chosen with --provider, inferred from a qualified model
name such as openai/gpt-4o, or taken from the config file default.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default relay.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	// Add commands
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(modelsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generateCmd() *cobra.Command {
	var (
		model       string
		system      string
		temperature float32
		maxTokens   uint32
		stream      bool
		sessionID   string
		dbPath      string
		jsonOutput  bool
		noCache     bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Send one prompt and print the reply",
		Long: `Send a single prompt to the selected provider and print the reply.

Identical prompts are served from the response cache until the entry
expires; transient provider failures are retried with backoff. With
--session the exchange is appended to the conversation history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider:   provider,
				Model:      model,
				System:     system,
				MaxTokens:  maxTokens,
				Stream:     stream,
				SessionID:  sessionID,
				DBPath:     dbPath,
				ConfigPath: configPath,
				JSONOutput: jsonOutput,
				NoCache:    noCache,
				Timeout:    timeout,
				Verbose:    verbose,
			}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}
			return cli.Generate(context.Background(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name, plain or provider-qualified (openai/gpt-4o)")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().Float32Var(&temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().Uint32Var(&maxTokens, "max-tokens", 0, "Maximum reply tokens (0 uses the configured default)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the reply incrementally as it arrives")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence")
	cmd.Flags().StringVar(&dbPath, "db", ".relay/relay.db", "Database path for storage")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Extract a JSON object from the reply (disables --stream)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (0 uses the configured default)")

	return cmd
}

func chatCmd() *cobra.Command {
	var (
		model       string
		system      string
		temperature float32
		maxTokens   uint32
		stream      bool
		sessionID   string
		dbPath      string
		noCache     bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with the selected provider.

History is persisted per session and restored on the next run. Inside
the session, /stats shows the response cache and /invalidate <model>
drops cached replies for one model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider:   provider,
				Model:      model,
				System:     system,
				MaxTokens:  maxTokens,
				Stream:     stream,
				SessionID:  sessionID,
				DBPath:     dbPath,
				ConfigPath: configPath,
				NoCache:    noCache,
				Timeout:    timeout,
				Verbose:    verbose,
			}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}
			return cli.Chat(context.Background(), opts)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name, plain or provider-qualified (openai/gpt-4o)")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().Float32Var(&temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().Uint32Var(&maxTokens, "max-tokens", 0, "Maximum reply tokens (0 uses the configured default)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print replies incrementally as they arrive")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence (default \"default\")")
	cmd.Flags().StringVar(&dbPath, "db", ".relay/relay.db", "Database path for storage")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (0 uses the configured default)")

	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List providers, default models and key status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Models(cli.Options{ConfigPath: configPath})
		},
	}
}
