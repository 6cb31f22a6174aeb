// Package audit is a best-effort analytics sink for emitted events and
// memory-assimilation decisions. It is never authoritative: the relational
// and vector stores remain the source of truth (§3 Ownership); this package
// only answers "what happened and when" for observability.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"orakle/internal/events"
	"orakle/internal/memory"
)

// ClickHouseSink appends one row per emitted event to an append-only table.
// Modeled on manifold's own use of ClickHouse for analytical event data
// (internal/agentd's clickhouse-backed metrics/traces/logs tables).
type ClickHouseSink struct {
	conn clickhouse.Conn
}

func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orakle_events (
			ts        DateTime64(3) DEFAULT now64(),
			event_type String,
			event_name String,
			payload    String
		) ENGINE = MergeTree()
		ORDER BY ts
	`); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orakle_assimilations (
			ts         DateTime64(3) DEFAULT now64(),
			context_id String,
			action     String,
			decision   String
		) ENGINE = MergeTree()
		ORDER BY ts
	`); err != nil {
		return nil, err
	}
	return &ClickHouseSink{conn: conn}, nil
}

// RecordAssimilation satisfies memory.AuditSink: one append-only row per
// ingestion decision, the same fire-and-forget policy as Emit.
func (s *ClickHouseSink) RecordAssimilation(ctx context.Context, contextID string, decision memory.AssimilationDecision) {
	b, err := json.Marshal(decision)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = s.conn.Exec(ctx, `INSERT INTO orakle_assimilations (context_id, action, decision) VALUES (?, ?, ?)`,
		contextID, string(decision.Action), string(b))
}

// Emit is fire-and-forget: a failed audit write never affects the turn.
func (s *ClickHouseSink) Emit(e events.Event) {
	b, err := events.Marshal(e)
	if err != nil {
		return
	}
	var envelope struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	}
	_ = json.Unmarshal(b, &envelope)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.conn.Exec(ctx, `INSERT INTO orakle_events (event_type, event_name, payload) VALUES (?, ?, ?)`,
		envelope.Type, envelope.Event, string(b))
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
