package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	tool_calls   TEXT NOT NULL DEFAULT '',
	tool_call_id TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);
`

// SQLiteStore persists a session in a per-session SQLite database. Batch
// appends run in a single transaction, which gives the all-or-nothing
// guarantee the JSON store gets from its rename.
type SQLiteStore struct {
	name string
	db   *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the SQLite store for the
// given session name.
func NewSQLiteStore(name string) (*SQLiteStore, error) {
	dir, err := ensureSessionDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.db", name))
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open session database %s: %w", ErrStoreUnavailable, path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: could not initialize session database %s: %w", ErrStoreUnavailable, path, err)
	}
	return &SQLiteStore{name: name, db: db}, nil
}

func (s *SQLiteStore) Name() string { return s.name }

func (s *SQLiteStore) Append(msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: could not begin transaction: %w", ErrStoreUnavailable, err)
	}
	now := time.Now().UTC()
	for _, msg := range msgs {
		var toolCalls string
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to serialize tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		_, err := tx.Exec(
			`INSERT INTO messages (id, role, content, tool_calls, tool_call_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), msg.Role, msg.Content, toolCalls, msg.ToolCallID, now,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: could not append message: %w", ErrStoreUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: could not commit append: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Load() ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, role, content, tool_calls, tool_call_id, created_at FROM messages ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read messages: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		var toolCalls string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: could not scan message: %w", ErrStoreUnavailable, err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("%w: could not parse stored tool calls: %w", ErrStoreUnavailable, err)
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: could not read messages: %w", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

func (s *SQLiteStore) Meta() (Meta, error) {
	rows, err := s.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: could not read session metadata: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var m Meta
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Meta{}, fmt.Errorf("%w: could not scan session metadata: %w", ErrStoreUnavailable, err)
		}
		switch key {
		case "mode":
			m.Mode = value
		case "toolset":
			m.Toolset = value
		case "tool_verbosity":
			m.ToolVerbosity = value
		case "acp":
			m.Acp = value == "true"
		}
	}
	return m, rows.Err()
}

func (s *SQLiteStore) SaveMeta(m Meta) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: could not begin transaction: %w", ErrStoreUnavailable, err)
	}
	pairs := map[string]string{
		"mode":           m.Mode,
		"toolset":        m.Toolset,
		"tool_verbosity": m.ToolVerbosity,
		"acp":            fmt.Sprintf("%t", m.Acp),
	}
	for key, value := range pairs {
		if _, err := tx.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: could not save session metadata: %w", ErrStoreUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: could not commit session metadata: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
