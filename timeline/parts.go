// Message part classification: process trace vs final answer.

package timeline

// PartType identifies a message content part.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartTool      PartType = "tool"
)

// Reasoning sub-states as delivered by the source message model.
const (
	ReasoningStreaming = "streaming"
	ReasoningDone      = "done"
)

// Tool source states as delivered by the source message model.
const (
	ToolInputStreaming  = "input-streaming"
	ToolInputAvailable  = "input-available"
	ToolOutputAvailable = "output-available"
	ToolOutputError     = "output-error"
)

// PartStatus is the render status attached to a process part.
type PartStatus string

const (
	PartPending        PartStatus = "pending"
	PartInputAvailable PartStatus = "input-available"
	PartSuccess        PartStatus = "success"
	PartErrored        PartStatus = "error"
	PartRunning        PartStatus = "running"
	PartComplete       PartStatus = "complete"
)

// Part is one ordered content part of a message.
type Part struct {
	Type     PartType
	Text     string
	State    string // reasoning sub-state or tool source state
	ToolName string
}

// ProcessPart is a part rendered inside the collapsible trace, with its
// derived status.
type ProcessPart struct {
	Part
	Status PartStatus
}

// Classification splits a message's parts into trace content and the
// concluding answer.
type Classification struct {
	Process []ProcessPart
	Final   []Part
}

// ClassifyParts splits ordered message parts. Only text following the last
// reasoning/tool part is the final answer; text interleaved between tool
// calls is narration ("let me check that...") and belongs in the trace.
// streaming reports whether the message is still arriving, which is what
// makes a trailing reasoning part "running" rather than "complete".
func ClassifyParts(parts []Part, streaming bool) Classification {
	lastNonText := -1
	for i, p := range parts {
		if p.Type == PartReasoning || p.Type == PartTool {
			lastNonText = i
		}
	}

	var c Classification
	for i, p := range parts {
		if p.Type == PartText && i > lastNonText {
			c.Final = append(c.Final, p)
			continue
		}
		c.Process = append(c.Process, ProcessPart{
			Part:   p,
			Status: partStatus(p, i == len(parts)-1 && streaming),
		})
	}
	return c
}

// partStatus derives a process part's render status from its own state.
// Total by construction: unrecognized source states degrade to pending
// instead of failing, so future states render safely.
func partStatus(p Part, streamingTail bool) PartStatus {
	switch p.Type {
	case PartReasoning:
		if p.State == ReasoningStreaming && streamingTail {
			return PartRunning
		}
		return PartComplete
	case PartTool:
		switch p.State {
		case ToolInputStreaming:
			return PartPending
		case ToolInputAvailable:
			return PartInputAvailable
		case ToolOutputAvailable:
			return PartSuccess
		case ToolOutputError:
			return PartErrored
		default:
			return PartPending
		}
	default:
		return PartComplete
	}
}
