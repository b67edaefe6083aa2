// Anthropic adapter using the official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Anthropic Messages API
// - SDK stream event translation (text, thinking, tool use blocks)

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"panelcore/backend"
	"panelcore/stream"
)

// AnthropicClient adapts the Anthropic Messages API to the panel event
// stream.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicClient creates a new Anthropic adapter.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	return &AnthropicClient{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: float64(cfg.Temperature),
	}
}

// Name returns the adapter name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Stream starts a streaming message and translates SDK events.
func (c *AnthropicClient) Stream(ctx context.Context, req backend.Request) (*backend.StreamHandle, error) {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan stream.Event, streamBuffer)

	go func() {
		defer close(events)
		c.run(ctx, req.Prompt, events)
	}()

	return backend.NewStreamHandle(events, cancel), nil
}

// run drives the SDK stream to completion. Tool calls are announced when
// their block opens and re-announced with accumulated input when it
// closes, so the consumer sees the input as soon as it is complete.
func (c *AnthropicClient) run(ctx context.Context, prompt string, events chan<- stream.Event) {
	sdkStream := c.client.Messages.NewStreaming(ctx, c.params(prompt))

	var (
		stopReason string
		toolID     string
		toolName   string
		toolInput  strings.Builder
	)

	for sdkStream.Next() {
		event := sdkStream.Current()

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			switch block := eventVariant.ContentBlock.AsAny().(type) {
			case anthropic.ToolUseBlock:
				toolID = block.ID
				toolName = block.Name
				toolInput.Reset()
				if !emit(ctx, events, stream.Event{Kind: stream.KindToolCall, Call: &stream.ToolCall{ID: block.ID, Name: block.Name}}) {
					return
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					if !emit(ctx, events, stream.Event{Kind: stream.KindDelta, Text: deltaVariant.Text}) {
						return
					}
				}
			case anthropic.ThinkingDelta:
				if deltaVariant.Thinking != "" {
					if !emit(ctx, events, stream.Event{Kind: stream.KindReasoning, Text: deltaVariant.Thinking}) {
						return
					}
				}
			case anthropic.InputJSONDelta:
				toolInput.WriteString(deltaVariant.PartialJSON)
			}
		case anthropic.ContentBlockStopEvent:
			if toolID != "" && toolInput.Len() > 0 {
				call := &stream.ToolCall{ID: toolID, Name: toolName, Input: []byte(toolInput.String())}
				if !emit(ctx, events, stream.Event{Kind: stream.KindToolCall, Call: call}) {
					return
				}
			}
			toolID = ""
			toolName = ""
			toolInput.Reset()
		case anthropic.MessageDeltaEvent:
			if eventVariant.Delta.StopReason != "" {
				stopReason = string(eventVariant.Delta.StopReason)
			}
		}
	}

	if err := sdkStream.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		emit(ctx, events, stream.Event{Kind: stream.KindError, Err: err.Error()})
		return
	}

	if stopReason == "" {
		stopReason = "stop"
	}
	emit(ctx, events, stream.Event{Kind: stream.KindComplete, StopReason: stopReason})
}

// Complete sends a non-streaming message and returns its text.
func (c *AnthropicClient) Complete(ctx context.Context, req backend.Request) (string, error) {
	message, err := c.client.Messages.New(ctx, c.params(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		}
	}
	return content.String(), nil
}

func (c *AnthropicClient) params(prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

// Verify AnthropicClient implements backend.Client
var _ backend.Client = (*AnthropicClient)(nil)
