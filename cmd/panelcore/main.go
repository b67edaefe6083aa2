// Package main provides the panelcore CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"panelcore/cli"
)

var (
	// Global flags
	provider    string
	backendURL  string
	keepPartial bool
	storePath   string
	verbose     bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "panelcore",
		Short: "Agent-stream client for the assistant side panel backend",
		Long: `A CLI client for the assistant panel's agent stream.

Streams replies from the panel backend (or a model provider directly),
reducing tool calls, results, and reasoning into an ordered step trace.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "anthropic", "Model provider (anthropic, openai, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "Panel backend base URL (empty talks to the provider directly)")
	rootCmd.PersistentFlags().BoolVar(&keepPartial, "keep-partial", false, "Keep partial text as an interrupted message on error or abort")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "SQLite path for persisting provider results")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show the step trace and debug logging")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:    provider,
		BackendURL:  backendURL,
		KeepPartial: keepPartial,
		StorePath:   storePath,
		Verbose:     verbose,
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Stream one reply for a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunChat(context.Background(), args[0], options())
		},
	}
}

func askCmd() *cobra.Command {
	var sourceURL string
	var optionID string

	cmd := &cobra.Command{
		Use:   "ask [selected text]",
		Short: "Ask about a text selection via the contextual workflow",
		Long: `Runs the "ask about selection" flow: the backend proposes up to three
intents for the selection, one is chosen (--option, or the first), and
the follow-up reply is streamed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunAsk(context.Background(), args[0], sourceURL, optionID, options())
		},
	}

	cmd.Flags().StringVar(&sourceURL, "url", "", "Source URL of the selection")
	cmd.Flags().StringVar(&optionID, "option", "", "Option id to execute (defaults to the first)")

	return cmd
}
