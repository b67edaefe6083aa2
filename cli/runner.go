// Command execution for CLI commands.
//
// Information Hiding:
// - Backend/provider client selection hidden
// - Session and store wiring hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"panelcore/backend"
	"panelcore/config"
	"panelcore/llm"
	"panelcore/session"
	"panelcore/storage"
	"panelcore/timeline"
	"panelcore/workflow"
)

// Options holds CLI execution options.
type Options struct {
	Provider    string
	BackendURL  string
	KeepPartial bool
	StorePath   string
	Verbose     bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Provider: "anthropic",
	}
}

// RunChat streams one reply for the prompt, printing text as it arrives
// and the step trace once the exchange settles.
func RunChat(ctx context.Context, prompt string, opts Options) error {
	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, settings, err := buildClient(opts)
	if err != nil {
		return err
	}

	store, cleanup, err := buildStore(opts, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	sess := newSession(client, store, logger, opts, settings)
	results, err := sess.Send(ctx, prompt)
	if err != nil {
		return fmt.Errorf("starting exchange: %w", err)
	}

	result := <-results
	fmt.Println()
	return renderResult(result, opts.Verbose)
}

// RunAsk runs the contextual workflow for a text selection: fetch intent
// options, pick one, and stream the follow-up reply.
func RunAsk(ctx context.Context, selectedText, sourceURL, optionID string, opts Options) error {
	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, settings, err := buildClient(opts)
	if err != nil {
		return err
	}

	store, cleanup, err := buildStore(opts, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	sess := newSession(client, store, logger, opts, settings)
	flow := workflow.New(client, sess, workflow.WithLogger(logger))
	defer flow.Close()

	options := flow.Start(ctx, selectedText, sourceURL)
	if len(options) == 0 {
		return fmt.Errorf("workflow closed before options arrived")
	}
	fmt.Println("Options:")
	for _, opt := range options {
		marker := " "
		if opt.ID == optionID {
			marker = "*"
		}
		fmt.Printf("  %s %s: %s\n", marker, opt.ID, opt.Label)
	}

	chosen := options[0]
	for _, opt := range options {
		if opt.ID == optionID {
			chosen = opt
			break
		}
	}
	fmt.Printf("\nRunning %q...\n\n", chosen.Label)

	results, err := flow.SelectOption(ctx, chosen)
	if err != nil {
		return fmt.Errorf("executing option: %w", err)
	}

	result := <-results
	fmt.Println()
	return renderResult(result, opts.Verbose)
}

// buildClient picks the transport: the panel backend when a URL is
// configured, otherwise a direct provider adapter.
func buildClient(opts Options) (backend.Client, config.Settings, error) {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, config.Settings{}, err
	}

	baseURL := opts.BackendURL
	if baseURL == "" {
		baseURL = settings.Backend.URL
	}
	if baseURL != "" {
		return backend.NewHTTPClient(baseURL), settings, nil
	}

	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, config.Settings{}, err
	}
	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, config.Settings{}, err
	}
	client, err := llm.New(providerType, llm.Config{
		APIKey:      apiKey,
		Model:       settings.LLM.Model,
		MaxTokens:   settings.LLM.MaxTokens,
		Temperature: float32(settings.LLM.Temperature),
	})
	if err != nil {
		return nil, config.Settings{}, err
	}
	return client, settings, nil
}

// buildStore opens the sqlite result store when a path is configured.
func buildStore(opts Options, settings config.Settings) (storage.ResultStore, func(), error) {
	path := opts.StorePath
	if path == "" {
		path = settings.Storage.Path
	}
	if path == "" {
		return nil, nil, nil
	}

	store, err := storage.OpenSqlite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening result store: %w", err)
	}
	return store, func() { store.Close() }, nil
}

func newSession(client backend.Client, store storage.ResultStore, logger *zap.Logger, opts Options, settings config.Settings) *session.Session {
	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithDeltaHandler(func(delta string) { fmt.Print(delta) }),
	}
	if opts.KeepPartial || settings.Session.KeepPartial {
		sessionOpts = append(sessionOpts, session.WithPartialPolicy(session.PartialKeep))
	}
	if store != nil {
		sessionOpts = append(sessionOpts, session.WithResultStore(store))
	}
	return session.New(client, sessionOpts...)
}

func renderResult(result session.Result, verbose bool) error {
	if result.Err != nil {
		if result.Message != nil {
			fmt.Printf("(interrupted after %d characters)\n", len(result.Message.Text))
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Err.Message)
		return result.Err
	}

	if verbose && len(result.Message.Steps) > 0 {
		printSteps(result.Message.Steps)
	}
	if result.Message.StopReason != "" && result.Message.StopReason != "stop" {
		fmt.Printf("(stopped: %s)\n", result.Message.StopReason)
	}
	return nil
}

func printSteps(steps []timeline.Step) {
	fmt.Printf("Trace (%d steps):\n", len(steps))
	for _, step := range steps {
		switch step.Type {
		case timeline.StepThinking:
			fmt.Printf("  [thinking] %s\n", step.Text)
		case timeline.StepSearch:
			fmt.Printf("  [%s] %q -> %s, %d results\n", step.Provider, step.Query, step.Status, len(step.Results))
			for _, item := range step.Results {
				fmt.Printf("      - %s (%s)\n", item.Title, item.URL)
			}
		default:
			fmt.Printf("  [%s] %s -> %s\n", step.Type, step.Label, step.Status)
		}
	}
	fmt.Println()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}
