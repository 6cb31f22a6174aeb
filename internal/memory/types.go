// Package memory implements the Memory Engine / GREEN algorithm (C6, §4.4):
// storage-backed memory assimilation, relevance decay, scored retrieval,
// and narrative summaries. Grounded primarily on
// original_source/ainara/framework/green_memories.py, which spec.md §4.4
// distills; this package follows the original's scoring formula and
// assimilation order precisely, persisted through internal/textstore and
// internal/vectorstore rather than SQLite+a bespoke vector file.
package memory

import "time"

type Kind string

const (
	KindKey      Kind = "key"
	KindExtended Kind = "extended"
)

type Status string

const (
	StatusCurrent Status = "current"
	StatusPast    Status = "past"
)

// Memory mirrors the Memory data model (§3), carrying the same fields as
// textstore.MemoryRow in the domain's own vocabulary.
type Memory struct {
	ID               string
	ContextID        string
	Type             Kind
	Topic            string
	Text             string
	Relevance        float64
	Status           Status
	CreatedAt        time.Time
	LastUpdated      time.Time
	SourceMessageIDs []string
}

// Action is the LLM's verdict for one candidate memory during turn
// ingestion (§4.4's four-action table).
type Action string

const (
	ActionIgnore    Action = "ignore"
	ActionReinforce Action = "reinforce"
	ActionCreate    Action = "create"
)

// AssimilationDecision is the parsed shape of the LLM's JSON response
// during turn ingestion, covering all four rows of §4.4's action table
// plus the past_memory_ids/duplicates carried on any action.
type AssimilationDecision struct {
	Action        Action   `json:"action"`
	MemoryID      string   `json:"memory_id,omitempty"`
	NewText       string   `json:"new_text,omitempty"`
	Target        Kind     `json:"target,omitempty"`
	Topic         string   `json:"topic,omitempty"`
	Text          string   `json:"text,omitempty"`
	PastMemoryIDs []string `json:"past_memory_ids,omitempty"`
	Duplicates    []string `json:"duplicates,omitempty"`
}

// Scored pairs a Memory with its retrieval score for get_relevant_memories.
type Scored struct {
	Memory Memory
	Score  float64
}
