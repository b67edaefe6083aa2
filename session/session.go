// Package session owns one streaming exchange end to end: generation
// counting, cancellation, completion and finalization.
//
// A session is reusable: each Send bumps the generation counter and any
// event still arriving from a superseded exchange is dropped by the
// generation check instead of being locked out. That check is the entire
// concurrency story — stale work becomes a no-op rather than blocking.
//
// Information Hiding:
// - Event application and terminal-state bookkeeping hidden
// - Transport handle lifecycle hidden
// - Result persistence is best-effort and invisible to callers

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"panelcore/backend"
	"panelcore/results"
	"panelcore/stream"
	"panelcore/timeline"
)

// State is the session's lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Error codes surfaced on terminal failures. An abort is deliberately a
// different code from a transport failure so callers can tell "user
// changed their mind" from "backend fell over".
const (
	CodeTransport = "transport"
	CodeBackend   = "backend"
	CodeAborted   = "aborted"
)

// StreamError is the structured error surfaced when a session ends
// abnormally.
type StreamError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return e.Code + ": " + e.Message
}

// PartialPolicy names what happens to text already streamed in when a
// session ends in error or abort.
type PartialPolicy int

const (
	// PartialDiscard drops the in-flight buffer, so the user never sees
	// a truncated answer.
	PartialDiscard PartialPolicy = iota
	// PartialKeep snapshots the partial text as an interrupted message.
	PartialKeep
)

// Message is an immutable snapshot of one finished assistant turn.
type Message struct {
	ID          string
	Text        string
	StopReason  string
	Interrupted bool
	Steps       []timeline.Step
	Timestamp   time.Time
}

// Result is the terminal outcome of one Send, delivered exactly once.
type Result struct {
	Message *Message     // nil when the exchange failed before any snapshot
	Err     *StreamError // nil on normal completion
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithPartialPolicy selects the in-flight buffer policy.
func WithPartialPolicy(p PartialPolicy) Option {
	return func(s *Session) { s.policy = p }
}

// WithResultStore enables best-effort persistence of normalized provider
// results as tool calls complete.
func WithResultStore(store ResultStore) Option {
	return func(s *Session) { s.store = store }
}

// WithDeltaHandler registers a callback invoked for each text delta of the
// current exchange, for progressive rendering.
func WithDeltaHandler(fn func(string)) Option {
	return func(s *Session) { s.onDelta = fn }
}

// ResultStore is the slice of the storage interface the session needs;
// the storage package's stores satisfy it.
type ResultStore interface {
	Store(ctx context.Context, sessionID, toolCallID string, provider results.Provider, items []results.NormalizedResult) error
}

// Session drives streaming exchanges against one backend client.
type Session struct {
	client  backend.Client
	logger  *zap.Logger
	policy  PartialPolicy
	store   ResultStore
	onDelta func(string)

	mu         sync.Mutex
	generation int64
	id         string
	state      State
	buffer     strings.Builder
	tl         *timeline.Timeline
	handle     *backend.StreamHandle
	terminal   bool
	result     Result
	resultCh   chan Result
}

// New creates a session over the given backend client.
func New(client backend.Client, opts ...Option) *Session {
	s := &Session{
		client: client,
		logger: zap.NewNop(),
		state:  StateIdle,
		tl:     timeline.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier of the current (or most recent) exchange.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Generation returns the current generation counter value.
func (s *Session) Generation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Steps returns a copy of the current exchange's timeline.
func (s *Session) Steps() []timeline.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Steps()
}

// BufferedText returns the text accumulated so far in the current
// exchange, for progressive rendering.
func (s *Session) BufferedText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

// Send starts a new streaming exchange. Any exchange still in flight is
// superseded: its events fail the generation check from this point on and
// are discarded. The returned channel delivers the terminal Result exactly
// once.
func (s *Session) Send(ctx context.Context, prompt string) (<-chan Result, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.id = uuid.NewString()
	s.state = StateConnecting
	s.buffer.Reset()
	s.tl = timeline.New()
	s.terminal = false
	s.result = Result{}
	s.resultCh = make(chan Result, 1)
	resultCh := s.resultCh
	sessionID := s.id
	s.mu.Unlock()

	handle, err := s.client.Stream(ctx, backend.Request{Prompt: prompt, SessionID: sessionID})
	if err != nil {
		s.mu.Lock()
		streamErr := s.failLocked(gen, CodeBackend, err.Error())
		s.mu.Unlock()
		if streamErr != nil {
			resultCh <- Result{Err: streamErr}
		}
		return resultCh, err
	}

	s.mu.Lock()
	if gen == s.generation && !s.terminal {
		s.handle = handle
	} else {
		// A newer Send superseded this exchange, or it was aborted
		// while still connecting; the transport must not keep running.
		handle.Cancel()
	}
	s.mu.Unlock()

	go s.consume(gen, handle, resultCh)
	return resultCh, nil
}

// Abort cancels the in-flight exchange. The state flips synchronously;
// events that the transport delivers while settling are filtered out by
// the terminal/generation checks.
func (s *Session) Abort() {
	s.mu.Lock()
	handle := s.handle
	if s.state != StateConnecting && s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	s.abortLocked(s.generation)
	s.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
}

// consume drains the handle's events and delivers the terminal result
// once the transport settles.
func (s *Session) consume(gen int64, handle *backend.StreamHandle, resultCh chan Result) {
	for ev := range handle.Events() {
		s.apply(gen, ev)
	}

	s.mu.Lock()
	if gen == s.generation && !s.terminal {
		// Channel closed without an explicit completion event: the
		// [DONE] sentinel ended the stream, so snapshot what we have.
		s.completeLocked(gen, "stop")
	}
	result := s.result
	stale := gen != s.generation
	s.mu.Unlock()

	if !stale {
		resultCh <- result
	}
}

// apply folds one event into the session, guarded by the generation check.
func (s *Session) apply(gen int64, ev stream.Event) {
	var onDelta func(string)
	var deltaText string

	s.mu.Lock()
	if gen != s.generation || s.terminal {
		s.mu.Unlock()
		s.logger.Debug("dropping stale event",
			zap.Int64("event_generation", gen),
			zap.Stringer("kind", ev.Kind))
		return
	}

	// Any event counts as the stream's first byte.
	if s.state == StateConnecting {
		s.state = StateStreaming
	}

	switch ev.Kind {
	case stream.KindDelta:
		s.buffer.WriteString(ev.Text)
		onDelta = s.onDelta
		deltaText = ev.Text
	case stream.KindReasoning, stream.KindToolCall:
		s.tl.Apply(ev)
	case stream.KindToolResult:
		s.tl.Apply(ev)
		s.persistResultLocked(ev)
	case stream.KindError:
		code := CodeBackend
		if ev.Transport {
			code = CodeTransport
		}
		s.failLocked(gen, code, ev.Err)
	case stream.KindComplete:
		s.completeLocked(gen, ev.StopReason)
	}
	s.mu.Unlock()

	if onDelta != nil && deltaText != "" {
		onDelta(deltaText)
	}
}

// completeLocked snapshots the buffer as an immutable message and ends
// the exchange cleanly. Caller holds the mutex.
func (s *Session) completeLocked(gen int64, stopReason string) {
	if gen != s.generation || s.terminal {
		return
	}
	msg := &Message{
		ID:         s.id,
		Text:       s.buffer.String(),
		StopReason: stopReason,
		Steps:      s.tl.Steps(),
		Timestamp:  time.Now(),
	}
	s.buffer.Reset()
	s.state = StateDisconnected
	s.terminal = true
	s.result = Result{Message: msg}
	s.handle = nil
}

// failLocked ends the exchange with a structured error, honoring the
// partial-buffer policy. Caller holds the mutex. Returns the error when
// the failure applied (nil when superseded).
func (s *Session) failLocked(gen int64, code, message string) *StreamError {
	if gen != s.generation || s.terminal {
		return nil
	}
	streamErr := &StreamError{Code: code, Message: message}
	result := Result{Err: streamErr}
	if s.policy == PartialKeep && s.buffer.Len() > 0 {
		result.Message = &Message{
			ID:          s.id,
			Text:        s.buffer.String(),
			StopReason:  code,
			Interrupted: true,
			Steps:       s.tl.Steps(),
			Timestamp:   time.Now(),
		}
	}
	s.buffer.Reset()
	s.state = StateError
	s.terminal = true
	s.result = result
	s.handle = nil
	s.logger.Error("session ended abnormally",
		zap.String("session_id", s.id),
		zap.String("code", code),
		zap.String("message", message))
	return streamErr
}

// abortLocked is failLocked with the abort code and the disconnected
// state: an abort is a user decision, not an error. Caller holds the
// mutex.
func (s *Session) abortLocked(gen int64) {
	if gen != s.generation || s.terminal {
		return
	}
	streamErr := &StreamError{Code: CodeAborted, Message: "stream aborted by user"}
	result := Result{Err: streamErr}
	if s.policy == PartialKeep && s.buffer.Len() > 0 {
		result.Message = &Message{
			ID:          s.id,
			Text:        s.buffer.String(),
			StopReason:  CodeAborted,
			Interrupted: true,
			Steps:       s.tl.Steps(),
			Timestamp:   time.Now(),
		}
	}
	s.buffer.Reset()
	s.state = StateDisconnected
	s.terminal = true
	s.result = result
	s.handle = nil
}

// persistResultLocked stores the normalized results of a just-completed
// step, best-effort. Caller holds the mutex.
func (s *Session) persistResultLocked(ev stream.Event) {
	if s.store == nil || ev.Result == nil {
		return
	}
	step, ok := s.tl.Step(ev.Result.ToolCallID)
	if !ok || step.Status != timeline.StatusComplete || len(step.Results) == 0 {
		return
	}
	if err := s.store.Store(context.Background(), s.id, step.ID, step.Provider, step.Results); err != nil {
		s.logger.Warn("failed to persist provider results",
			zap.String("session_id", s.id),
			zap.String("tool_call_id", step.ID),
			zap.Error(err))
	}
}
