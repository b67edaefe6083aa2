package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"panelcore/stream"
)

func collectEvents(t *testing.T, h *StreamHandle, timeout time.Duration) []stream.Event {
	t.Helper()
	var events []stream.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestHTTPClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != streamPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"data\":\"Hello\"}\n")
		fmt.Fprint(w, "data: {\"complete\":true}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	handle, err := client.Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	events := collectEvents(t, handle, 2*time.Second)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Kind != stream.KindDelta || events[0].Text != "Hello" {
		t.Errorf("first event: %+v", events[0])
	}
	if events[1].Kind != stream.KindComplete {
		t.Errorf("second event: %+v", events[1])
	}
}

func TestHTTPClientStreamNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	if _, err := client.Stream(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestHTTPClientStreamCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"data\":\"partial\"}\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release // hold the stream open until the test is done
	}))
	defer srv.Close()
	defer close(release)

	client := NewHTTPClient(srv.URL)
	handle, err := client.Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	// Read the first event, then cancel; the channel must close without
	// reporting a transport error for the cancellation itself.
	ev := <-handle.Events()
	if ev.Kind != stream.KindDelta {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	handle.Cancel()
	handle.Cancel() // idempotent

	for ev := range handle.Events() {
		if ev.Kind == stream.KindError {
			t.Errorf("cancellation must not surface as a stream error: %+v", ev)
		}
	}
}

func TestHTTPClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completePath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"text":"{\"options\":[]}"}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	text, err := client.Complete(context.Background(), Request{Prompt: "suggest"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != `{"options":[]}` {
		t.Errorf("unexpected text %q", text)
	}
}

func TestHTTPClientCompleteRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain text answer")
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	text, err := client.Complete(context.Background(), Request{Prompt: "suggest"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "plain text answer" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestHTTPClientCompleteNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

// severedStreamServer hijacks the connection and closes it mid-body, with
// a Content-Length larger than what was written, so the client's read
// fails instead of looking like a clean end of stream.
func severedStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
}

func TestHTTPClientStreamSeveredConnection(t *testing.T) {
	srv := severedStreamServer(t)
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	handle, err := client.Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	events := collectEvents(t, handle, 2*time.Second)
	var errEv *stream.Event
	for i := range events {
		if events[i].Kind == stream.KindError {
			errEv = &events[i]
		}
	}
	if errEv == nil {
		t.Fatalf("severed connection produced no error event: %+v", events)
	}
	if !errEv.Transport {
		t.Errorf("read failure must be marked as a transport error: %+v", errEv)
	}
}
