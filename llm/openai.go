// OpenAI adapter using the go-openai library. DeepSeek speaks the same
// API from a different base URL, so it shares this adapter.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - SDK stream delta translation (content, reasoning, tool calls)

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"panelcore/backend"
	"panelcore/stream"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// OpenAIClient adapts the Chat Completions API to the panel event stream.
type OpenAIClient struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIClient creates a new OpenAI adapter.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	return &OpenAIClient{
		client:      openai.NewClient(cfg.APIKey),
		name:        "openai",
		model:       cfg.Model,
		maxTokens:   int(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// NewDeepSeekClient creates an adapter for DeepSeek's OpenAI-compatible
// API.
func NewDeepSeekClient(cfg Config) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = deepseekBaseURL

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		name:        "deepseek",
		model:       cfg.Model,
		maxTokens:   int(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// Name returns the adapter name.
func (c *OpenAIClient) Name() string {
	return c.name
}

// Stream starts a streaming chat completion and translates deltas.
func (c *OpenAIClient) Stream(ctx context.Context, req backend.Request) (*backend.StreamHandle, error) {
	ctx, cancel := context.WithCancel(ctx)

	chatReq := c.request(req.Prompt)
	chatReq.Stream = true

	sdkStream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}

	events := make(chan stream.Event, streamBuffer)
	go func() {
		defer close(events)
		defer sdkStream.Close()
		c.run(ctx, sdkStream, events)
	}()

	return backend.NewStreamHandle(events, cancel), nil
}

func (c *OpenAIClient) run(ctx context.Context, sdkStream *openai.ChatCompletionStream, events chan<- stream.Event) {
	stopReason := "stop"
	for {
		response, err := sdkStream.Recv()
		if errors.Is(err, io.EOF) {
			emit(ctx, events, stream.Event{Kind: stream.KindComplete, StopReason: stopReason})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(ctx, events, stream.Event{Kind: stream.KindError, Err: err.Error()})
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.FinishReason != "" && choice.FinishReason != openai.FinishReasonNull {
			stopReason = string(choice.FinishReason)
		}
		if choice.Delta.ReasoningContent != "" {
			if !emit(ctx, events, stream.Event{Kind: stream.KindReasoning, Text: choice.Delta.ReasoningContent}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID == "" || tc.Function.Name == "" {
				continue
			}
			call := &stream.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: []byte(tc.Function.Arguments)}
			if !emit(ctx, events, stream.Event{Kind: stream.KindToolCall, Call: call}) {
				return
			}
		}
		if choice.Delta.Content != "" {
			if !emit(ctx, events, stream.Event{Kind: stream.KindDelta, Text: choice.Delta.Content}) {
				return
			}
		}
	}
}

// Complete sends a non-streaming chat completion and returns its text.
func (c *OpenAIClient) Complete(ctx context.Context, req backend.Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:               c.model,
		MaxCompletionTokens: c.maxTokens,
		Temperature:         c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// Verify OpenAIClient implements backend.Client
var _ backend.Client = (*OpenAIClient)(nil)
