// SQLite-backed result store.
//
// Information Hiding:
// - SQLite connection management hidden behind ResultStore
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"panelcore/results"
)

// SqliteStore implements ResultStore using SQLite.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteStore(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *sql.DB) (*SqliteStore, error) {
	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS provider_results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool_call_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			result_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			snippet TEXT,
			favicon TEXT,
			date TEXT,
			relevance REAL,
			metadata TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_provider_results_session
		ON provider_results(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Store implements ResultStore. All items of one tool call are written in
// a single transaction.
func (s *SqliteStore) Store(ctx context.Context, sessionID, toolCallID string, provider results.Provider, items []results.NormalizedResult) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO provider_results
		(id, session_id, tool_call_id, provider, result_id, title, url, snippet, favicon, date, relevance, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, item := range items {
		var metadata *string
		if len(item.Metadata) > 0 {
			encoded, err := json.Marshal(item.Metadata)
			if err == nil {
				text := string(encoded)
				metadata = &text
			}
		}
		_, err := stmt.ExecContext(ctx,
			uuid.NewString(), sessionID, toolCallID, string(provider),
			item.ID, item.Title, item.URL,
			item.Snippet, item.Favicon, item.Date, item.RelevanceScore,
			metadata, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	return tx.Commit()
}

// Query implements ResultStore.
func (s *SqliteStore) Query(ctx context.Context, sessionID string, limit int) ([]StoredResult, error) {
	query := `
		SELECT tool_call_id, provider, result_id, title, url, snippet, favicon, date, relevance, metadata, created_at
		FROM provider_results
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var stored []StoredResult
	for rows.Next() {
		var (
			r         StoredResult
			provider  string
			metadata  sql.NullString
			createdAt string
		)
		err := rows.Scan(
			&r.ToolCallID, &provider,
			&r.Item.ID, &r.Item.Title, &r.Item.URL,
			&r.Item.Snippet, &r.Item.Favicon, &r.Item.Date, &r.Item.RelevanceScore,
			&metadata, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.SessionID = sessionID
		r.Provider = results.Provider(provider)
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &r.Item.Metadata)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = ts
		}
		stored = append(stored, r)
	}
	return stored, rows.Err()
}

// Verify SqliteStore implements ResultStore
var _ ResultStore = (*SqliteStore)(nil)
