// Package storage provides persistence for normalized provider results.
//
// The session writes results here best-effort as tool calls complete, so a
// panel reopened later can show "recent sources" without replaying a
// stream. Conversation history is deliberately not stored.
//
// Information Hiding:
// - Backing store (memory vs SQLite) hidden behind ResultStore
// - Schema and serialization details encapsulated

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"panelcore/results"
)

// StoredResult is one persisted normalized result with its provenance.
type StoredResult struct {
	SessionID  string
	ToolCallID string
	Provider   results.Provider
	Item       results.NormalizedResult
	CreatedAt  time.Time
}

// ResultStore persists normalized provider results per session.
type ResultStore interface {
	// Store saves the results of one completed tool call.
	Store(ctx context.Context, sessionID, toolCallID string, provider results.Provider, items []results.NormalizedResult) error

	// Query returns a session's stored results, newest first, capped at
	// limit (0 means no cap).
	Query(ctx context.Context, sessionID string, limit int) ([]StoredResult, error)

	// Close releases the backing store.
	Close() error
}

// InMemoryStore keeps results in process memory (useful for testing and
// for runs that don't want a database file). Thread-safe.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string][]StoredResult
}

// NewInMemoryStore creates an empty in-memory result store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[string][]StoredResult)}
}

// Store implements ResultStore.
func (s *InMemoryStore) Store(_ context.Context, sessionID, toolCallID string, provider results.Provider, items []results.NormalizedResult) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.results[sessionID] = append(s.results[sessionID], StoredResult{
			SessionID:  sessionID,
			ToolCallID: toolCallID,
			Provider:   provider,
			Item:       item,
			CreatedAt:  now,
		})
	}
	return nil
}

// Query implements ResultStore.
func (s *InMemoryStore) Query(_ context.Context, sessionID string, limit int) ([]StoredResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.results[sessionID]
	out := make([]StoredResult, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements ResultStore.
func (s *InMemoryStore) Close() error {
	return nil
}

// Verify InMemoryStore implements ResultStore
var _ ResultStore = (*InMemoryStore)(nil)
