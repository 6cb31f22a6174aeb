package textstore

import (
	"context"
	"fmt"
	"time"
)

// MemoryStatus and MemoryType mirror the Memory data model (§3). They live
// here rather than in internal/memory so the relational schema and its Go
// representation stay in one place, the way chat_store_postgres.go owns
// both its DDL and its scan helpers.
type MemoryStatus string

const (
	MemoryCurrent MemoryStatus = "current"
	MemoryPast    MemoryStatus = "past"
)

type MemoryKind string

const (
	MemoryKey      MemoryKind = "key"
	MemoryExtended MemoryKind = "extended"
)

type MemoryRow struct {
	ID               string
	Type             MemoryKind
	Topic            string
	Text             string
	Relevance        float64
	Status           MemoryStatus
	CreatedAt        time.Time
	LastUpdated      time.Time
	SourceMessageIDs []string
}

// InitMemories creates user_memories with indexes on topic/type/status, per
// §4.4's storage model.
func (s *Store) InitMemories(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_memories (
			id                 TEXT PRIMARY KEY,
			context_id         TEXT NOT NULL,
			type               TEXT NOT NULL,
			topic              TEXT NOT NULL,
			text               TEXT NOT NULL,
			relevance          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			status             TEXT NOT NULL DEFAULT 'current',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_updated       TIMESTAMPTZ NOT NULL DEFAULT now(),
			source_message_ids TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_topic ON user_memories (context_id, topic)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_type ON user_memories (context_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_status ON user_memories (context_id, status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("textstore init memories: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertMemory(ctx context.Context, contextID string, m MemoryRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_memories (id, context_id, type, topic, text, relevance, status, created_at, last_updated, source_message_ids)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, contextID, string(m.Type), m.Topic, m.Text, m.Relevance, string(m.Status), m.CreatedAt, m.LastUpdated, m.SourceMessageIDs)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *Store) UpdateMemory(ctx context.Context, m MemoryRow) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE user_memories SET text=$2, relevance=$3, status=$4, last_updated=$5 WHERE id=$1`,
		m.ID, m.Text, m.Relevance, string(m.Status), m.LastUpdated)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_memories WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (MemoryRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, topic, text, relevance, status, created_at, last_updated, source_message_ids
		FROM user_memories WHERE id=$1`, id)
	var m MemoryRow
	var typ, status string
	if err := row.Scan(&m.ID, &typ, &m.Topic, &m.Text, &m.Relevance, &status, &m.CreatedAt, &m.LastUpdated, &m.SourceMessageIDs); err != nil {
		return MemoryRow{}, fmt.Errorf("get memory: %w", err)
	}
	m.Type, m.Status = MemoryKind(typ), MemoryStatus(status)
	return m, nil
}

func (s *Store) ListMemories(ctx context.Context, contextID string, status MemoryStatus) ([]MemoryRow, error) {
	query := `SELECT id, type, topic, text, relevance, status, created_at, last_updated, source_message_ids FROM user_memories WHERE context_id=$1`
	args := []any{contextID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, string(status))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		var m MemoryRow
		var typ, st string
		if err := rows.Scan(&m.ID, &typ, &m.Topic, &m.Text, &m.Relevance, &st, &m.CreatedAt, &m.LastUpdated, &m.SourceMessageIDs); err != nil {
			return nil, err
		}
		m.Type, m.Status = MemoryKind(typ), MemoryStatus(st)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMemories is used by the Memory Engine's startup reconciliation to
// compare the relational row count against the vector store's count.
func (s *Store) CountMemories(ctx context.Context, contextID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM user_memories WHERE context_id=$1`, contextID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}
