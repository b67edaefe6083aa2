package llm

import (
	"context"

	"panelcore/stream"
)

// emit delivers one event unless the context has been canceled. Returns
// false when the stream should stop.
func emit(ctx context.Context, ch chan<- stream.Event, ev stream.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
