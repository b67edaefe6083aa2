// Package workflow implements the "ask about selection" flow: one
// non-streaming call that proposes up to three short intents for a text
// selection, then one streaming exchange for the intent the user picks.
//
// Every transition is total. Synthesis failures of any kind (request,
// extraction, parse) resolve to a fixed fallback set so the caller always
// has options to present, and Close is valid from any phase.
//
// Information Hiding:
// - Prompt construction for both backend calls hidden
// - Option extraction and fallback substitution hidden
// - Epoch-based staleness filtering hidden

package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"panelcore/backend"
	intjson "panelcore/internal/json"
	"panelcore/session"
)

// Phase is the workflow's current state.
type Phase string

const (
	PhaseClosed       Phase = "closed"
	PhaseLoading      Phase = "loading"
	PhaseOptions      Phase = "options"
	PhaseCustomPrompt Phase = "custom-prompt"
	PhaseExecuting    Phase = "executing"
)

// maxOptions caps how many proposed intents are kept.
const maxOptions = 3

// Option is one proposed intent for the selected text.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// fallbackOptions is substituted whenever option synthesis fails, so the
// flow never surfaces an empty or errored option list.
func fallbackOptions() []Option {
	return []Option{
		{ID: "explain", Label: "Explain this", Description: "Explain what the selected text means"},
		{ID: "summarize", Label: "Summarize", Description: "Summarize the selected text in a few sentences"},
		{ID: "research", Label: "Find related info", Description: "Search for background on the selected text"},
	}
}

// Completer issues the non-streaming option-synthesis request.
type Completer interface {
	Complete(ctx context.Context, req backend.Request) (string, error)
}

// Sender runs the follow-up streaming exchange; *session.Session
// satisfies it.
type Sender interface {
	Send(ctx context.Context, prompt string) (<-chan session.Result, error)
}

// Workflow drives the selection flow over one completer and one sender.
type Workflow struct {
	completer Completer
	sender    Sender
	logger    *zap.Logger

	mu           sync.Mutex
	epoch        int64
	phase        Phase
	selectedText string
	sourceURL    string
	options      []Option
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

// New creates a closed workflow.
func New(completer Completer, sender Sender, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		completer: completer,
		sender:    sender,
		logger:    zap.NewNop(),
		phase:     PhaseClosed,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Phase returns the current phase.
func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// SelectedText returns the selection the flow was started with.
func (w *Workflow) SelectedText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedText
}

// SourceURL returns the selection's source.
func (w *Workflow) SourceURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sourceURL
}

// Options returns a copy of the current option list.
func (w *Workflow) Options() []Option {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Option, len(w.options))
	copy(out, w.options)
	return out
}

// Start opens the flow for a selection: phase goes to loading, the
// backend is asked for up to three intents, and phase lands on options.
// Start never fails; any synthesis problem substitutes the fixed
// fallback set. A Close racing the backend call wins: the stale options
// are discarded and the flow stays closed.
func (w *Workflow) Start(ctx context.Context, selectedText, sourceURL string) []Option {
	w.mu.Lock()
	w.epoch++
	epoch := w.epoch
	w.phase = PhaseLoading
	w.selectedText = selectedText
	w.sourceURL = sourceURL
	w.options = nil
	w.mu.Unlock()

	options := w.synthesizeOptions(ctx, selectedText, sourceURL)

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch || w.phase != PhaseLoading {
		return nil
	}
	w.phase = PhaseOptions
	w.options = options
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// synthesizeOptions runs the non-streaming call and extracts the options
// object from the response text. The response may wrap the JSON in prose
// or a fenced block; the first balanced object containing an "options"
// key is taken.
func (w *Workflow) synthesizeOptions(ctx context.Context, selectedText, sourceURL string) []Option {
	text, err := w.completer.Complete(ctx, backend.Request{Prompt: optionPrompt(selectedText, sourceURL)})
	if err != nil {
		w.logger.Warn("option synthesis request failed, using fallback", zap.Error(err))
		return fallbackOptions()
	}

	var parsed struct {
		Options []Option `json:"options"`
	}
	if err := intjson.ExtractObjectWithKey(text, "options", &parsed); err != nil {
		w.logger.Warn("option extraction failed, using fallback", zap.Error(err))
		return fallbackOptions()
	}

	var options []Option
	for _, opt := range parsed.Options {
		if strings.TrimSpace(opt.Label) == "" {
			continue
		}
		options = append(options, opt)
		if len(options) == maxOptions {
			break
		}
	}
	if len(options) == 0 {
		w.logger.Warn("option synthesis returned no usable entries, using fallback")
		return fallbackOptions()
	}
	return options
}

// BeginCustomPrompt moves from options to the custom-prompt phase, where
// the user types their own intent. No-op from any other phase.
func (w *Workflow) BeginCustomPrompt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase == PhaseOptions {
		w.phase = PhaseCustomPrompt
	}
}

// Back returns from custom-prompt to the option list without discarding
// the selection. No-op from any other phase.
func (w *Workflow) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase == PhaseCustomPrompt {
		w.phase = PhaseOptions
	}
}

// SelectOption executes one of the proposed intents through the
// streaming send path. Valid only from the options phase.
func (w *Workflow) SelectOption(ctx context.Context, opt Option) (<-chan session.Result, error) {
	return w.execute(ctx, PhaseOptions, opt.Label)
}

// SubmitCustomPrompt executes a user-written intent. Valid only from the
// custom-prompt phase.
func (w *Workflow) SubmitCustomPrompt(ctx context.Context, prompt string) (<-chan session.Result, error) {
	return w.execute(ctx, PhaseCustomPrompt, prompt)
}

func (w *Workflow) execute(ctx context.Context, from Phase, intent string) (<-chan session.Result, error) {
	w.mu.Lock()
	if w.phase != from {
		phase := w.phase
		w.mu.Unlock()
		return nil, fmt.Errorf("cannot execute from phase %q", phase)
	}
	epoch := w.epoch
	w.phase = PhaseExecuting
	selectedText := w.selectedText
	sourceURL := w.sourceURL
	w.mu.Unlock()

	ch, err := w.sender.Send(ctx, followupPrompt(selectedText, sourceURL, intent))
	if err != nil {
		w.mu.Lock()
		if epoch == w.epoch && w.phase == PhaseExecuting {
			w.phase = PhaseOptions
		}
		w.mu.Unlock()
		return nil, fmt.Errorf("starting contextual exchange: %w", err)
	}

	out := make(chan session.Result, 1)
	go func() {
		result, ok := <-ch
		w.mu.Lock()
		if epoch == w.epoch && w.phase == PhaseExecuting {
			w.closeLocked()
		}
		w.mu.Unlock()
		if ok {
			out <- result
		}
		close(out)
	}()
	return out, nil
}

// Close resets the flow from any phase. All selection fields clear
// together; a partial reset is never observable.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.epoch++
	w.closeLocked()
}

func (w *Workflow) closeLocked() {
	w.phase = PhaseClosed
	w.selectedText = ""
	w.sourceURL = ""
	w.options = nil
}

func optionPrompt(selectedText, sourceURL string) string {
	var b strings.Builder
	b.WriteString("A user selected the following text")
	if sourceURL != "" {
		b.WriteString(" on ")
		b.WriteString(sourceURL)
	}
	b.WriteString(":\n\n")
	b.WriteString(selectedText)
	b.WriteString("\n\nPropose exactly three short actions the user might want. ")
	b.WriteString(`Respond with a JSON object shaped {"options":[{"id","label","description"}]} and nothing else.`)
	return b.String()
}

func followupPrompt(selectedText, sourceURL, intent string) string {
	var b strings.Builder
	b.WriteString(intent)
	b.WriteString("\n\nSelected text:\n")
	b.WriteString(selectedText)
	if sourceURL != "" {
		b.WriteString("\n\nSource: ")
		b.WriteString(sourceURL)
	}
	return b.String()
}
