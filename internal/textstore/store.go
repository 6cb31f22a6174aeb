// Package textstore is the relational half of persisted state (§6): the
// append-only message log plus the key/value db_metadata side-table. All
// contexts share one database (one pgx pool); every row carries a
// context_id column that scopes queries to one context. Grounded on
// manifold's internal/persistence/databases/chat_store_postgres.go (table
// DDL idiom, idempotent migrations, pgx/v5 pool usage).
package textstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Role and Message are the Message data model from §3. Text Storage is a
// leaf component (C3); Chat Memory (C7) and the Conversation Manager (C9)
// build on these types rather than redefining their own.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	ID        string
	Role      Role
	Content   string
	Tokens    int
	Timestamp time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the tables this package owns if they do not already exist,
// following chat_store_postgres.go's CREATE TABLE IF NOT EXISTS /
// ALTER TABLE ... ADD COLUMN IF NOT EXISTS migration idiom.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			tokens     INTEGER NOT NULL DEFAULT 0,
			timestamp  TIMESTAMPTZ NOT NULL DEFAULT now(),
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_context ON messages (context_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS db_metadata (
			context_id TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			PRIMARY KEY (context_id, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("textstore init: %w", err)
		}
	}
	return nil
}

// AppendMessage inserts one message into the log. Per §5 ordering guarantee
// (b), callers append only after the assistant's full content is known.
func (s *Store) AppendMessage(ctx context.Context, contextID string, m Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, context_id, role, content, tokens, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, contextID, string(m.Role), m.Content, m.Tokens, m.Timestamp)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns a context's message log in insertion order,
// optionally paginated (limit<=0 means no limit).
func (s *Store) ListMessages(ctx context.Context, contextID string, limit int) ([]Message, error) {
	query := `SELECT id, role, content, tokens, timestamp FROM messages WHERE context_id=$1 ORDER BY timestamp ASC`
	args := []any{contextID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		var ts time.Time
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Tokens, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessagesSince returns a context's messages strictly newer than since, in
// insertion order — the feed `memory.Engine.ProcessNewMessagesForUpdate`
// walks each pass, seeded by the profile_last_processed_timestamp metadata
// key. A zero since returns the full log.
func (s *Store) MessagesSince(ctx context.Context, contextID string, since time.Time) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, tokens, timestamp FROM messages
		WHERE context_id=$1 AND timestamp > $2
		ORDER BY timestamp ASC`, contextID, since)
	if err != nil {
		return nil, fmt.Errorf("messages since: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		var ts time.Time
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Tokens, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

// KeywordSearch performs a simple ILIKE substring search over a context's
// messages — the "keyword retrieval" named in §2 for Text Storage, kept
// deliberately simple since full-text ranking is out of scope here.
func (s *Store) KeywordSearch(ctx context.Context, contextID, query string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, tokens, timestamp FROM messages
		WHERE context_id=$1 AND content ILIKE '%' || $2 || '%'
		ORDER BY timestamp DESC LIMIT $3`, contextID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		var ts time.Time
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Tokens, &ts); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMetadata reads one db_metadata value; ok is false if the key is unset.
func (s *Store) GetMetadata(ctx context.Context, contextID, key string) (value string, ok bool, err error) {
	row := s.pool.QueryRow(ctx, `SELECT value FROM db_metadata WHERE context_id=$1 AND key=$2`, contextID, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get metadata: %w", err)
	}
	return value, true, nil
}

// SetMetadata upserts one db_metadata value.
func (s *Store) SetMetadata(ctx context.Context, contextID, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO db_metadata (context_id, key, value) VALUES ($1,$2,$3)
		ON CONFLICT (context_id, key) DO UPDATE SET value = EXCLUDED.value`,
		contextID, key, value)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// ListActiveContexts returns every distinct context_id with at least one
// logged message, the set the backup scheduler sweeps each cycle.
func (s *Store) ListActiveContexts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT context_id FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("list active contexts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan context id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteMetadata removes one db_metadata key, used by the GREEN
// reconciliation rule for a manual profile reset (§4.4).
func (s *Store) DeleteMetadata(ctx context.Context, contextID, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM db_metadata WHERE context_id=$1 AND key=$2`, contextID, key)
	if err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}
