// Panel backend transport over HTTP + SSE.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"panelcore/stream"
)

const (
	streamPath   = "/api/chat/stream"
	completePath = "/api/chat/complete"

	// readChunkSize is deliberately small-ish; frames are short and the
	// decoder handles any boundary, so there is no point buffering big.
	readChunkSize = 4096
)

// HTTPClient talks to the panel's own backend, which speaks the
// newline-delimited "data:" dialect decoded by the stream package.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.httpc = c }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient creates a panel backend client for the given base URL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		// No overall timeout: streams are long-lived. Cancellation is
		// per-request via context.
		httpc:  &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the transport name.
func (c *HTTPClient) Name() string {
	return "panel"
}

// Stream POSTs the prompt and decodes the SSE response body into events.
func (c *HTTPClient) Stream(ctx context.Context, req Request) (*StreamHandle, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := c.post(streamCtx, streamPath, req)
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan stream.Event, 16)
	go c.readLoop(streamCtx, resp.Body, events)

	return NewStreamHandle(events, cancel), nil
}

// readLoop feeds response bytes through the frame decoder and forwards
// decoded events. It owns the body and the channel.
func (c *HTTPClient) readLoop(ctx context.Context, body io.ReadCloser, events chan<- stream.Event) {
	defer close(events)
	defer body.Close()

	decoder := stream.NewDecoder()
	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Write(buf[:n]) {
				if frame.Done {
					return
				}
				c.emit(ctx, events, stream.ParseFrame(frame.Payload))
			}
		}
		if err != nil {
			for _, frame := range decoder.Flush() {
				if !frame.Done {
					c.emit(ctx, events, stream.ParseFrame(frame.Payload))
				}
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				// Clean end of body, or cancellation the consumer asked
				// for; either way there is nothing to report.
				return
			}
			c.logger.Warn("stream read failed", zap.Error(err))
			c.emit(ctx, events, []stream.Event{{Kind: stream.KindError, Err: err.Error(), Transport: true}})
			return
		}
	}
}

func (c *HTTPClient) emit(ctx context.Context, events chan<- stream.Event, batch []stream.Event) {
	for _, ev := range batch {
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Complete POSTs the prompt and returns the full response text. The
// completion endpoint answers either {"text": "..."} or a raw body.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.post(ctx, completePath, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	var wrapped struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Text != "" {
		return wrapped.Text, nil
	}
	return string(body), nil
}

func (c *HTTPClient) post(ctx context.Context, path string, req Request) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("backend returned non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, snippet)
	}
	return resp, nil
}

// Verify HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
