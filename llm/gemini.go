// Google Gemini adapter using the official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for the Gemini API
// - SDK stream iterator translation (text, thought, function call parts)

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"panelcore/backend"
	"panelcore/stream"
)

// GeminiClient adapts the Gemini API to the panel event stream.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // client initialization error, reported on first use
}

// NewGeminiClient creates a new Gemini adapter. If client initialization
// fails, the error is stored and returned on first use.
func NewGeminiClient(cfg Config) *GeminiClient {
	c := &GeminiClient{
		model:       cfg.Model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		c.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return c
	}
	c.client = client
	return c
}

// Name returns the adapter name.
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Stream starts a streaming generation and translates response parts.
func (c *GeminiClient) Stream(ctx context.Context, req backend.Request) (*backend.StreamHandle, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan stream.Event, streamBuffer)

	go func() {
		defer close(events)
		c.run(ctx, req.Prompt, events)
	}()

	return backend.NewStreamHandle(events, cancel), nil
}

func (c *GeminiClient) run(ctx context.Context, prompt string, events chan<- stream.Event) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	stopReason := "stop"

	for response, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, c.config()) {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(ctx, events, stream.Event{Kind: stream.KindError, Err: err.Error()})
			return
		}
		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
			continue
		}

		candidate := response.Candidates[0]
		if candidate.FinishReason != "" {
			stopReason = strings.ToLower(string(candidate.FinishReason))
		}
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				call := &stream.ToolCall{
					// Gemini has no call id; the function name stands in.
					ID:    part.FunctionCall.Name,
					Name:  part.FunctionCall.Name,
					Input: argsJSON,
				}
				if !emit(ctx, events, stream.Event{Kind: stream.KindToolCall, Call: call}) {
					return
				}
			}
			if part.Text == "" {
				continue
			}
			kind := stream.KindDelta
			if part.Thought {
				kind = stream.KindReasoning
			}
			if !emit(ctx, events, stream.Event{Kind: kind, Text: part.Text}) {
				return
			}
		}
	}

	emit(ctx, events, stream.Event{Kind: stream.KindComplete, StopReason: stopReason})
}

// Complete sends a non-streaming generation and returns its text.
func (c *GeminiClient) Complete(ctx context.Context, req backend.Request) (string, error) {
	if c.initErr != nil {
		return "", c.initErr
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	response, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.config())
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	content := response.Text()
	if content == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return content, nil
}

func (c *GeminiClient) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
}

// Verify GeminiClient implements backend.Client
var _ backend.Client = (*GeminiClient)(nil)
