// Package backend provides transports to the agent backend.
//
// A Client exposes the two call shapes the panel needs: a streaming send
// that yields decoded events until the stream terminates, and a blocking
// completion used for small auxiliary prompts. The streaming side hands
// back a handle whose Cancel is safe to call at any time; cancellation is
// cooperative, so events already in flight may still be delivered and it
// is the consumer's job to discard them.
//
// Information Hiding:
// - Endpoint paths and request encoding
// - Response body lifecycle and cancellation plumbing

package backend

import (
	"context"

	"panelcore/stream"
)

// Request is one prompt for the backend.
type Request struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// Client is the transport interface to an agent backend. Implementations:
// the panel backend over SSE, and the direct provider adapters in llm.
type Client interface {
	// Name returns the transport name (for logging/debugging).
	Name() string

	// Stream sends a prompt and streams decoded events back. The event
	// channel closes when the stream terminates for any reason; a
	// transport failure is delivered as a final error-kind event before
	// the close.
	Stream(ctx context.Context, req Request) (*StreamHandle, error)

	// Complete sends a prompt and blocks for the full response text.
	Complete(ctx context.Context, req Request) (string, error)
}

// StreamHandle is one in-flight streaming exchange.
type StreamHandle struct {
	events <-chan stream.Event
	cancel context.CancelFunc
}

// NewStreamHandle wraps an event channel and its cancellation hook.
// Transport implementations construct handles; consumers only read them.
func NewStreamHandle(events <-chan stream.Event, cancel context.CancelFunc) *StreamHandle {
	return &StreamHandle{events: events, cancel: cancel}
}

// Events returns the decoded event channel. It closes when the exchange
// is over.
func (h *StreamHandle) Events() <-chan stream.Event {
	return h.events
}

// Cancel tears down the underlying transport. Idempotent. The event
// channel still closes normally afterwards, possibly after delivering
// events that were already in flight.
func (h *StreamHandle) Cancel() {
	h.cancel()
}
