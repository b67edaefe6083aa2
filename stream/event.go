// Package stream decodes the agent backend's chunked event stream.
//
// The backend emits newline-delimited frames, each a "data:" prefixed JSON
// payload, terminated by a [DONE] sentinel line. Decoded frames expand into
// a tagged event union consumed by a single reducer, so the rest of the
// system never touches wire-level field names.
//
// Information Hiding:
// - Wire field aliases (id vs toolUseId, result vs output) resolved here
// - Frame boundary reassembly hidden behind Decoder
// - Malformed payload degradation policy encapsulated in ParseFrame

package stream

import (
	"encoding/json"
)

// EventKind identifies the payload flavor of an Event.
type EventKind int

const (
	// KindDelta is an incremental chunk of assistant text.
	KindDelta EventKind = iota
	// KindReasoning is an incremental chunk of extended-thinking text.
	KindReasoning
	// KindToolCall announces a tool invocation.
	KindToolCall
	// KindToolResult carries the output of a previously announced call.
	KindToolResult
	// KindComplete marks the end of the assistant turn.
	KindComplete
	// KindError carries a backend-reported stream error.
	KindError
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindReasoning:
		return "reasoning"
	case KindToolCall:
		return "tool_call"
	case KindToolResult:
		return "tool_result"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ToolCall describes one tool invocation announced by the stream.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult describes the outcome of one tool invocation, correlated to
// its call by ToolCallID.
type ToolResult struct {
	ToolCallID string
	Output     json.RawMessage
	Error      string
	DurationMs int64
}

// Event is one decoded unit of the stream, a tagged union over the
// recognized wire payloads. Exactly the fields implied by Kind are set.
type Event struct {
	Kind       EventKind
	Text       string      // KindDelta, KindReasoning
	Call       *ToolCall   // KindToolCall
	Result     *ToolResult // KindToolResult
	StopReason string      // KindComplete; "stop" unless the backend forced the stop
	Err        string      // KindError
	Transport  bool        // KindError: the transport itself failed, not an error the backend reported
}

// rawEvent mirrors the recognized top-level wire fields. Unknown fields are
// ignored by encoding/json, which is exactly the contract: ignore, don't
// reject.
type rawEvent struct {
	Data            string           `json:"data"`
	Delta           json.RawMessage  `json:"delta"`
	ReasoningText   string           `json:"reasoningText"`
	Thinking        string           `json:"thinking"`
	Reasoning       string           `json:"reasoning"`
	CurrentToolUse  *wireToolUse     `json:"current_tool_use"`
	ToolCalls       []wireToolUse    `json:"tool_calls"`
	ToolResults     []wireToolResult `json:"tool_results"`
	Complete        bool             `json:"complete"`
	Result          json.RawMessage  `json:"result"`
	ForceStop       bool             `json:"force_stop"`
	ForceStopReason string           `json:"force_stop_reason"`
	Error           json.RawMessage  `json:"error"`
}

// wireToolUse accepts both id spellings the backend has used.
type wireToolUse struct {
	ID        string          `json:"id"`
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

func (t wireToolUse) callID() string {
	if t.ID != "" {
		return t.ID
	}
	return t.ToolUseID
}

// wireToolResult accepts both correlation-id spellings and both payload
// spellings (result/output).
type wireToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolUseID  string          `json:"toolUseId"`
	Result     json.RawMessage `json:"result"`
	Output     json.RawMessage `json:"output"`
	Error      string          `json:"error"`
	DurationMs int64           `json:"duration_ms"`
}

func (r wireToolResult) callID() string {
	if r.ToolCallID != "" {
		return r.ToolCallID
	}
	return r.ToolUseID
}

func (r wireToolResult) payload() json.RawMessage {
	if len(r.Result) > 0 {
		return r.Result
	}
	return r.Output
}

// wireDelta is the object form of the "delta" field.
type wireDelta struct {
	Text string `json:"text"`
}

// wireResult is the subset of the final-result payload the reducer cares
// about: tool results the backend attached to the finished message instead
// of streaming individually.
type wireResult struct {
	Message struct {
		ToolResults []wireToolResult `json:"tool_results"`
	} `json:"message"`
}

// ParseFrame decodes one frame payload into zero or more events. A payload
// that is not valid JSON is degraded to a single text delta so no byte of
// model output is ever silently lost. One frame may expand to several
// events when the backend batches fields.
func ParseFrame(payload string) []Event {
	var raw rawEvent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return []Event{{Kind: KindDelta, Text: payload}}
	}
	return raw.events()
}

func (raw rawEvent) events() []Event {
	var events []Event

	if raw.Data != "" {
		events = append(events, Event{Kind: KindDelta, Text: raw.Data})
	}
	if text := deltaText(raw.Delta); text != "" {
		events = append(events, Event{Kind: KindDelta, Text: text})
	}
	for _, text := range []string{raw.ReasoningText, raw.Thinking, raw.Reasoning} {
		if text != "" {
			events = append(events, Event{Kind: KindReasoning, Text: text})
		}
	}

	if raw.CurrentToolUse != nil && raw.CurrentToolUse.Name != "" {
		events = append(events, Event{Kind: KindToolCall, Call: &ToolCall{
			ID:    raw.CurrentToolUse.callID(),
			Name:  raw.CurrentToolUse.Name,
			Input: raw.CurrentToolUse.Input,
		}})
	}
	for _, tc := range raw.ToolCalls {
		if tc.Name == "" {
			continue
		}
		events = append(events, Event{Kind: KindToolCall, Call: &ToolCall{
			ID:    tc.callID(),
			Name:  tc.Name,
			Input: tc.Input,
		}})
	}

	for _, tr := range raw.ToolResults {
		events = append(events, toolResultEvent(tr))
	}
	// The backend may attach tool results to the final result envelope
	// instead of streaming them individually.
	if len(raw.Result) > 0 {
		var final wireResult
		if err := json.Unmarshal(raw.Result, &final); err == nil {
			for _, tr := range final.Message.ToolResults {
				events = append(events, toolResultEvent(tr))
			}
		}
	}

	if errText := errorText(raw.Error); errText != "" {
		events = append(events, Event{Kind: KindError, Err: errText})
	}

	if raw.Complete || raw.ForceStop {
		reason := "stop"
		if raw.ForceStop {
			reason = "force_stop"
			if raw.ForceStopReason != "" {
				reason = raw.ForceStopReason
			}
		}
		events = append(events, Event{Kind: KindComplete, StopReason: reason})
	}

	return events
}

func toolResultEvent(tr wireToolResult) Event {
	return Event{Kind: KindToolResult, Result: &ToolResult{
		ToolCallID: tr.callID(),
		Output:     tr.payload(),
		Error:      tr.Error,
		DurationMs: tr.DurationMs,
	}}
}

// deltaText coerces the "delta" field, which arrives either as a bare
// string or as an object with a "text" member.
func deltaText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj wireDelta
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return ""
}

// errorText coerces the "error" field, which arrives either as a string or
// as an object with a message-like member.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message   string `json:"message"`
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.ErrorText
	}
	return string(raw)
}
