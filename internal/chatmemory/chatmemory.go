// Package chatmemory implements Chat Memory (C7, §3 Ownership): the
// persistent, context-scoped conversation log. It exclusively owns the
// message log, backed by internal/textstore's messages table; the Memory
// Engine (internal/memory) exclusively owns the memory table and vector
// index, a separate store entirely.
package chatmemory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"orakle/internal/textstore"
)

// Log is the conversation log for one context. It is a thin, intention-
// revealing wrapper over textstore.Store so C9 (Conversation Manager)
// never touches raw SQL or table names directly.
type Log struct {
	store *textstore.Store
}

func New(store *textstore.Store) *Log {
	return &Log{store: store}
}

// Append records one message and returns the id assigned to it, so callers
// can thread it into a Memory Engine ingestion call's source_message_ids.
func (l *Log) Append(ctx context.Context, contextID string, role textstore.Role, content string, tokens int) (string, error) {
	msg := textstore.Message{ID: uuid.NewString(), Role: role, Content: content, Tokens: tokens}
	if err := l.store.AppendMessage(ctx, contextID, msg); err != nil {
		return "", fmt.Errorf("chatmemory: append message: %w", err)
	}
	return msg.ID, nil
}

// Recent returns the last limit messages for contextID, oldest first,
// the shape the Conversation Manager needs to build an LLM prompt window.
func (l *Log) Recent(ctx context.Context, contextID string, limit int) ([]textstore.Message, error) {
	msgs, err := l.store.ListMessages(ctx, contextID, limit)
	if err != nil {
		return nil, fmt.Errorf("chatmemory: list messages: %w", err)
	}
	return msgs, nil
}

// Search does a keyword search over the log. Nothing in this module calls
// it: neither the slash commands nor memory retrieval fall back to it.
func (l *Log) Search(ctx context.Context, contextID, query string, limit int) ([]textstore.Message, error) {
	msgs, err := l.store.KeywordSearch(ctx, contextID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("chatmemory: search messages: %w", err)
	}
	return msgs, nil
}
