// Package timeline reduces decoded stream events into an ordered list of
// render-ready steps.
//
// The reducer is the one place where tool calls and their asynchronous
// results meet: calls append steps, results mutate them in place, and
// anything that cannot be correlated is dropped without error. Steps never
// move once appended; the renderer draws a trace line between them and
// reordering would corrupt the visual causality.
//
// Information Hiding:
// - Correlation bookkeeping (pending refs, id index) hidden
// - Provider classification and payload normalization delegated to results

package timeline

import (
	"encoding/json"
	"fmt"
	"time"

	"panelcore/results"
	"panelcore/stream"
)

// StepType identifies how a step is rendered in the trace.
type StepType string

const (
	StepThinking StepType = "thinking"
	StepSearch   StepType = "search"
	StepAction   StepType = "action"
	StepResult   StepType = "result"
)

// Status is a step's lifecycle state. Steps are immutable once they reach
// StatusComplete or StatusError.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Step is one renderable unit of the reasoning trace.
type Step struct {
	ID        string
	Type      StepType
	Label     string
	Status    Status
	Provider  results.Provider
	Query     string
	Text      string
	Results   []results.NormalizedResult
	Err       string
	Duration  time.Duration
	Timestamp time.Time
}

func (s Step) terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusError
}

// ToolCallRef tracks a pending invocation awaiting its result.
type ToolCallRef struct {
	ToolCallID string
	Provider   results.Provider
	Query      string
	Timestamp  time.Time
}

// Timeline accumulates steps from a single session's event sequence.
// Not safe for concurrent use; the owning session serializes Apply calls.
type Timeline struct {
	steps    []Step
	index    map[string]int
	pending  map[string]ToolCallRef
	thinking int
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{
		index:   make(map[string]int),
		pending: make(map[string]ToolCallRef),
	}
}

// Len returns the number of steps.
func (t *Timeline) Len() int {
	return len(t.steps)
}

// Steps returns a copy of the ordered step list.
func (t *Timeline) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Step returns the step with the given id, if present.
func (t *Timeline) Step(id string) (Step, bool) {
	idx, ok := t.index[id]
	if !ok {
		return Step{}, false
	}
	return t.steps[idx], true
}

// Pending returns the refs of calls still awaiting results.
func (t *Timeline) Pending() []ToolCallRef {
	refs := make([]ToolCallRef, 0, len(t.pending))
	for _, ref := range t.pending {
		refs = append(refs, ref)
	}
	return refs
}

// Apply folds one decoded event into the timeline. Events the timeline
// does not track (text deltas, completion, transport errors) are ignored;
// the session handles those.
func (t *Timeline) Apply(ev stream.Event) {
	switch ev.Kind {
	case stream.KindToolCall:
		t.applyToolCall(ev.Call)
	case stream.KindToolResult:
		t.applyToolResult(ev.Result)
	case stream.KindReasoning:
		t.applyThinking(ev.Text)
	}
}

func (t *Timeline) applyToolCall(call *stream.ToolCall) {
	if call == nil || call.ID == "" {
		return
	}
	provider := results.Classify(call.Name)
	if provider == results.ProviderNone {
		// Not a trackable result producer; other consumers may still
		// render it as a generic action.
		return
	}

	query := queryFromInput(call.Input)

	if idx, ok := t.index[call.ID]; ok {
		// The backend announces a call before its input finishes
		// streaming; a repeat with input fills in the query. Anything
		// else about a duplicate id is ignored to keep ids unique.
		step := &t.steps[idx]
		if !step.terminal() && step.Query == "" && query != "" {
			step.Query = query
			if ref, ok := t.pending[call.ID]; ok {
				ref.Query = query
				t.pending[call.ID] = ref
			}
		}
		return
	}

	now := time.Now()
	t.index[call.ID] = len(t.steps)
	t.steps = append(t.steps, Step{
		ID:        call.ID,
		Type:      StepSearch,
		Label:     call.Name,
		Status:    StatusRunning,
		Provider:  provider,
		Query:     query,
		Timestamp: now,
	})
	t.pending[call.ID] = ToolCallRef{
		ToolCallID: call.ID,
		Provider:   provider,
		Query:      query,
		Timestamp:  now,
	}
}

func (t *Timeline) applyToolResult(result *stream.ToolResult) {
	if result == nil {
		return
	}
	idx, ok := t.index[result.ToolCallID]
	if !ok {
		// Orphaned result: no step, no error, timeline unchanged.
		return
	}
	step := &t.steps[idx]
	if step.terminal() {
		return
	}

	step.Duration = time.Duration(result.DurationMs) * time.Millisecond
	if result.Error != "" {
		step.Status = StatusError
		step.Err = result.Error
	} else {
		step.Status = StatusComplete
		step.Results = results.Normalize(step.Provider, result.Output)
	}
	delete(t.pending, result.ToolCallID)
}

func (t *Timeline) applyThinking(text string) {
	if text == "" {
		return
	}
	// Thinking steps are point-in-time annotations, complete on arrival.
	t.thinking++
	id := fmt.Sprintf("thinking-%d", t.thinking)
	t.index[id] = len(t.steps)
	t.steps = append(t.steps, Step{
		ID:        id,
		Type:      StepThinking,
		Label:     "Thinking",
		Status:    StatusComplete,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// queryFromInput pulls the human-meaningful query out of a tool input
// payload when one of the conventional fields is present.
func queryFromInput(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields struct {
		Query  string `json:"query"`
		Q      string `json:"q"`
		Search string `json:"search"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	switch {
	case fields.Query != "":
		return fields.Query
	case fields.Q != "":
		return fields.Q
	default:
		return fields.Search
	}
}
