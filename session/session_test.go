package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"panelcore/backend"
	"panelcore/storage"
	"panelcore/stream"
	"panelcore/timeline"
)

// scriptedClient hands out stream handles whose event channels the test
// feeds by hand, so event interleavings across generations can be staged
// deterministically.
type scriptedClient struct {
	mu      sync.Mutex
	handles []*scriptedHandle
}

type scriptedHandle struct {
	ch       chan stream.Event
	canceled bool
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Stream(_ context.Context, _ backend.Request) (*backend.StreamHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &scriptedHandle{ch: make(chan stream.Event, 16)}
	c.handles = append(c.handles, h)
	return backend.NewStreamHandle(h.ch, func() {
		c.mu.Lock()
		h.canceled = true
		c.mu.Unlock()
	}), nil
}

func (c *scriptedClient) Complete(_ context.Context, _ backend.Request) (string, error) {
	return "", nil
}

func (c *scriptedClient) handle(i int) *scriptedHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[i]
}

func awaitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session result")
		return Result{}
	}
}

func TestSendCompletesWithSnapshot(t *testing.T) {
	client := &scriptedClient{}
	sess := New(client)

	ch, err := sess.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := sess.State(); got != StateConnecting {
		t.Errorf("state after send: %q", got)
	}

	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "Hel"}
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "lo!"}
	h.ch <- stream.Event{Kind: stream.KindComplete, StopReason: "stop"}
	close(h.ch)

	result := awaitResult(t, ch)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Message == nil || result.Message.Text != "Hello!" {
		t.Fatalf("unexpected message: %+v", result.Message)
	}
	if result.Message.StopReason != "stop" || result.Message.Interrupted {
		t.Errorf("unexpected snapshot flags: %+v", result.Message)
	}
	if got := sess.State(); got != StateDisconnected {
		t.Errorf("state after completion: %q", got)
	}
	if sess.BufferedText() != "" {
		t.Error("buffer should be cleared after snapshot")
	}
}

func TestForcedStopReasonRecorded(t *testing.T) {
	client := &scriptedClient{}
	sess := New(client)

	ch, _ := sess.Send(context.Background(), "hi")
	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "partial answer"}
	h.ch <- stream.Event{Kind: stream.KindComplete, StopReason: "max_tokens"}
	close(h.ch)

	result := awaitResult(t, ch)
	if result.Message == nil || result.Message.StopReason != "max_tokens" {
		t.Fatalf("forced stop reason lost: %+v", result.Message)
	}
}

func TestStaleEventsDiscarded(t *testing.T) {
	client := &scriptedClient{}
	sess := New(client)

	_, err := sess.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h1 := client.handle(0)
	h1.ch <- stream.Event{Kind: stream.KindDelta, Text: "old "}

	// Give the consumer a moment to apply the first event.
	waitFor(t, func() bool { return sess.BufferedText() == "old " })

	ch2, err := sess.Send(context.Background(), "second")
	if err != nil {
		t.Fatalf("second Send failed: %v", err)
	}

	// Events still arriving from the superseded exchange must be dropped.
	h1.ch <- stream.Event{Kind: stream.KindDelta, Text: "ghost"}
	h1.ch <- stream.Event{Kind: stream.KindToolCall, Call: &stream.ToolCall{ID: "t1", Name: "brave_web_search"}}
	close(h1.ch)

	h2 := client.handle(1)
	h2.ch <- stream.Event{Kind: stream.KindDelta, Text: "new"}
	h2.ch <- stream.Event{Kind: stream.KindComplete, StopReason: "stop"}
	close(h2.ch)

	result := awaitResult(t, ch2)
	if result.Message == nil || result.Message.Text != "new" {
		t.Fatalf("second exchange corrupted by stale events: %+v", result.Message)
	}
	if len(result.Message.Steps) != 0 {
		t.Errorf("stale tool call leaked into new timeline: %+v", result.Message.Steps)
	}
}

func TestAbortDiscardsBufferByDefault(t *testing.T) {
	client := &scriptedClient{}
	sess := New(client)

	ch, _ := sess.Send(context.Background(), "hi")
	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "half an ans"}
	waitFor(t, func() bool { return sess.BufferedText() == "half an ans" })

	sess.Abort()
	if got := sess.State(); got != StateDisconnected {
		t.Errorf("abort should flip state synchronously, got %q", got)
	}
	if !client.handle(0).canceledNow(client) {
		t.Error("abort should cancel the transport handle")
	}
	close(h.ch)

	result := awaitResult(t, ch)
	if result.Err == nil || result.Err.Code != CodeAborted {
		t.Fatalf("expected aborted error, got %+v", result)
	}
	if result.Message != nil {
		t.Errorf("default policy must discard the partial buffer: %+v", result.Message)
	}
}

func (h *scriptedHandle) canceledNow(c *scriptedClient) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return h.canceled
}

// blockingClient holds Stream open until released, so an abort can be
// staged while the session is still connecting.
type blockingClient struct {
	release  chan struct{}
	mu       sync.Mutex
	canceled bool
}

func (c *blockingClient) Name() string { return "blocking" }

func (c *blockingClient) Stream(_ context.Context, _ backend.Request) (*backend.StreamHandle, error) {
	<-c.release
	ch := make(chan stream.Event)
	close(ch)
	return backend.NewStreamHandle(ch, func() {
		c.mu.Lock()
		c.canceled = true
		c.mu.Unlock()
	}), nil
}

func (c *blockingClient) Complete(_ context.Context, _ backend.Request) (string, error) {
	return "", nil
}

func (c *blockingClient) wasCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

func TestAbortWhileConnectingCancelsTransport(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	sess := New(client)

	type sendReturn struct {
		ch  <-chan Result
		err error
	}
	sendDone := make(chan sendReturn, 1)
	go func() {
		ch, err := sess.Send(context.Background(), "hi")
		sendDone <- sendReturn{ch, err}
	}()

	waitFor(t, func() bool { return sess.State() == StateConnecting })
	sess.Abort()
	if got := sess.State(); got != StateDisconnected {
		t.Fatalf("state after abort from connecting: %q", got)
	}

	// Let the connect settle; the late handle must be canceled, not kept.
	close(client.release)

	var out sendReturn
	select {
	case out = <-sendDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Send never returned")
	}
	if out.err != nil {
		t.Fatalf("Send failed: %v", out.err)
	}

	result := awaitResult(t, out.ch)
	if result.Err == nil || result.Err.Code != CodeAborted {
		t.Fatalf("expected aborted error, got %+v", result)
	}
	waitFor(t, client.wasCanceled)
}

func TestSeveredStreamSurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("server does not support hijacking")
			return
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		defer conn.Close()
		bufrw.WriteString("HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: 4096\r\n\r\ndata: {\"data\":\"par")
		bufrw.Flush()
	}))
	defer srv.Close()

	sess := New(backend.NewHTTPClient(srv.URL))
	ch, err := sess.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	result := awaitResult(t, ch)
	if result.Err == nil || result.Err.Code != CodeTransport {
		t.Fatalf("severed connection should surface code %q, got %+v", CodeTransport, result)
	}
	if got := sess.State(); got != StateError {
		t.Errorf("state after transport failure: %q", got)
	}
}

func TestPartialKeepSnapshotsInterruptedMessage(t *testing.T) {
	client := &scriptedClient{}
	sess := New(client, WithPartialPolicy(PartialKeep))

	ch, _ := sess.Send(context.Background(), "hi")
	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "partial text"}
	h.ch <- stream.Event{Kind: stream.KindError, Err: "backend exploded"}
	close(h.ch)

	result := awaitResult(t, ch)
	if result.Err == nil || result.Err.Code != CodeBackend {
		t.Fatalf("expected backend error, got %+v", result)
	}
	if result.Message == nil || !result.Message.Interrupted || result.Message.Text != "partial text" {
		t.Fatalf("PartialKeep should snapshot interrupted text: %+v", result.Message)
	}
	if got := sess.State(); got != StateError {
		t.Errorf("state after stream error: %q", got)
	}
}

func TestEventsAfterTerminalAreDropped(t *testing.T) {
	client := &scriptedClient{}
	sess := New(client)

	ch, _ := sess.Send(context.Background(), "hi")
	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindComplete, StopReason: "stop"}
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "late"}
	close(h.ch)

	result := awaitResult(t, ch)
	if result.Message == nil || result.Message.Text != "" {
		t.Fatalf("post-completion delta must not apply: %+v", result.Message)
	}
}

func TestDeltaHandlerInvoked(t *testing.T) {
	client := &scriptedClient{}
	var mu sync.Mutex
	var seen []string
	sess := New(client, WithDeltaHandler(func(delta string) {
		mu.Lock()
		seen = append(seen, delta)
		mu.Unlock()
	}))

	ch, _ := sess.Send(context.Background(), "hi")
	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "a"}
	h.ch <- stream.Event{Kind: stream.KindDelta, Text: "b"}
	h.ch <- stream.Event{Kind: stream.KindComplete}
	close(h.ch)
	awaitResult(t, ch)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("delta handler calls: %v", seen)
	}
}

func TestResultsPersistedToStore(t *testing.T) {
	client := &scriptedClient{}
	store := storage.NewInMemoryStore()
	sess := New(client, WithResultStore(store))

	ch, _ := sess.Send(context.Background(), "hi")
	h := client.handle(0)
	h.ch <- stream.Event{Kind: stream.KindToolCall, Call: &stream.ToolCall{ID: "t1", Name: "brave_web_search"}}
	h.ch <- stream.Event{Kind: stream.KindToolResult, Result: &stream.ToolResult{
		ToolCallID: "t1",
		Output:     []byte(`[{"title":"X","url":"https://x.test"}]`),
	}}
	h.ch <- stream.Event{Kind: stream.KindComplete}
	close(h.ch)
	awaitResult(t, ch)

	stored, err := store.Query(context.Background(), sess.ID(), 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(stored) != 1 || stored[0].Item.Title != "X" {
		t.Fatalf("results not persisted: %+v", stored)
	}
}

// TestStreamScenarioOverHTTP replays the canonical two-chunk exchange
// through the real transport: a tool call split mid-frame across chunks,
// then its result, producing one step that goes running to complete with
// a normalized result.
func TestStreamScenarioOverHTTP(t *testing.T) {
	chunks := []string{
		"data: {\"current_tool_use\":{\"id\":\"t1\",\"name\":\"brave_web_search\"}}\nd",
		"ata: {\"tool_results\":[{\"tool_call_id\":\"t1\",\"result\":[{\"title\":\"X\",\"url\":\"https://x.test\"}]}]}\n",
		"data: {\"complete\":true}\n",
		"data: [DONE]\n",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprint(w, chunk)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}))
	defer srv.Close()

	sess := New(backend.NewHTTPClient(srv.URL))
	ch, err := sess.Send(context.Background(), "search for X")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	result := awaitResult(t, ch)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}

	steps := result.Message.Steps
	if len(steps) != 1 {
		t.Fatalf("expected exactly one step, got %+v", steps)
	}
	step := steps[0]
	if step.ID != "t1" || step.Status != timeline.StatusComplete {
		t.Fatalf("unexpected step: %+v", step)
	}
	if len(step.Results) != 1 || step.Results[0].Title != "X" || step.Results[0].URL != "https://x.test" {
		t.Fatalf("result not normalized: %+v", step.Results)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
