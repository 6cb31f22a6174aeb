package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"orakle/internal/config"
	"orakle/internal/llmadapter"
	"orakle/internal/textstore"
	"orakle/internal/vectorstore"
)

// AuditSink records assimilation decisions for observability; the
// ClickHouse-backed implementation in internal/events/audit satisfies
// this, but it is never a source of truth (§3's Ownership rules).
type AuditSink interface {
	RecordAssimilation(ctx context.Context, contextID string, decision AssimilationDecision)
}

// Engine is the Memory Engine (C6): turn ingestion/assimilation, decay,
// scored retrieval, and narrative summaries, backed by textstore (the
// authoritative relational store) and vectorstore (the derived index).
type Engine struct {
	store      *textstore.Store
	vectors    *vectorstore.Store
	llm        llmadapter.Provider
	cfg        config.MemoryConfig
	collection string
	metric     string
	audit      AuditSink
}

func New(store *textstore.Store, vectors *vectorstore.Store, llm llmadapter.Provider, cfg config.MemoryConfig, collection, metric string, audit AuditSink) *Engine {
	return &Engine{store: store, vectors: vectors, llm: llm, cfg: cfg, collection: collection, metric: metric, audit: audit}
}

func (e *Engine) scoringConfig() scoringConfig {
	return scoringConfig{
		keyMemoryBoost:    e.cfg.KeyMemoryBoost,
		relevanceWeight:   e.cfg.RelevanceWeight,
		pastMemoryPenalty: e.cfg.PastMemoryPenalty,
		maxRecencyBoost:   e.cfg.MaxRecencyBoost,
		recencyDecayRate:  e.cfg.RecencyDecayRate,
	}
}

// metaLastProcessedTimestamp is the profile_last_processed_timestamp
// reserved key (§3): the watermark ProcessNewMessagesForUpdate advances
// before assimilating each turn, and the signal Reconcile's manual-reset
// branch looks for against an empty memories table.
const metaLastProcessedTimestamp = "profile_last_processed_timestamp"

// Reconcile compares the relational row count to the vector store's count
// for contextID and, on mismatch or an explicit vector_db_needs_reset
// flag, rebuilds the vector index from textstore (the authoritative
// store), then clears the flag. It also detects a manual reset: an empty
// memories table with a stale profile_last_processed_timestamp still set
// means user_memories was wiped out from under the engine, so the
// timestamp is cleared to force a full rescan on the next
// ProcessNewMessagesForUpdate pass.
func (e *Engine) Reconcile(ctx context.Context, contextID string) error {
	relCount, err := e.store.CountMemories(ctx, contextID)
	if err != nil {
		return fmt.Errorf("reconcile: count relational memories: %w", err)
	}

	if relCount == 0 {
		if _, ok, err := e.store.GetMetadata(ctx, contextID, metaLastProcessedTimestamp); err != nil {
			return fmt.Errorf("reconcile: read last-processed timestamp: %w", err)
		} else if ok {
			log.Warn().Str("context", contextID).
				Msg("memory: memories table empty but last-processed timestamp set, forcing full rescan")
			if err := e.store.DeleteMetadata(ctx, contextID, metaLastProcessedTimestamp); err != nil {
				return fmt.Errorf("reconcile: clear last-processed timestamp: %w", err)
			}
			if err := e.store.SetMetadata(ctx, contextID, "vector_db_needs_reset", "true"); err != nil {
				return fmt.Errorf("reconcile: flag vector reset: %w", err)
			}
		}
	}

	needsReset, _, err := e.store.GetMetadata(ctx, contextID, "vector_db_needs_reset")
	if err != nil {
		return fmt.Errorf("reconcile: read reset flag: %w", err)
	}

	vecCount, err := e.vectors.Count(ctx, e.collection)
	if err != nil {
		return fmt.Errorf("reconcile: count vector memories: %w", err)
	}

	if needsReset != "true" && relCount == vecCount {
		return nil
	}

	log.Warn().Int("relational", relCount).Int("vector", vecCount).Str("context", contextID).
		Msg("memory: reconciling vector index from relational store")

	if err := e.vectors.Reset(ctx, e.collection, e.metric); err != nil {
		return fmt.Errorf("reconcile: reset vector collection: %w", err)
	}
	rows, err := e.store.ListMemories(ctx, contextID, "")
	if err != nil {
		return fmt.Errorf("reconcile: list memories: %w", err)
	}
	for _, row := range rows {
		vec, err := e.embed(ctx, row.Text)
		if err != nil {
			log.Warn().Err(err).Str("memory", row.ID).Msg("memory: reconcile re-embed failed, skipping")
			continue
		}
		if err := e.vectors.Upsert(ctx, e.collection, row.ID, vec, memoryMetadata(row)); err != nil {
			return fmt.Errorf("reconcile: upsert memory %s: %w", row.ID, err)
		}
	}
	return e.store.SetMetadata(ctx, contextID, "vector_db_needs_reset", "false")
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.llm.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed returned no vectors")
	}
	return vecs[0], nil
}

func memoryMetadata(row textstore.MemoryRow) map[string]string {
	return map[string]string{
		"type":         string(row.Type),
		"topic":        row.Topic,
		"status":       string(row.Status),
		"relevance":    fmt.Sprintf("%f", row.Relevance),
		"last_updated": row.LastUpdated.UTC().Format(time.RFC3339),
	}
}

// IngestTurn is invoked after each (user,assistant) turn. It performs a
// single LLM call carrying the conversation snippet and candidate
// memories (the semantic-search hits for the snippet's latest user line;
// memories created earlier in the same batch are not merged in separately,
// so they appear only if the search returns them), then applies the returned decision in the
// order §4.4 mandates: past_memory_ids first, then the primary action,
// then duplicates.
func (e *Engine) IngestTurn(ctx context.Context, contextID, conversationSnippet string, sourceMessageIDs []string) error {
	contextWindow := e.llm.ContextWindow()
	candidates, err := e.candidateMemoriesForAssimilation(ctx, contextID, conversationSnippet, assimilationTopK(contextWindow))
	if err != nil {
		return fmt.Errorf("ingest turn: find candidates: %w", err)
	}

	prompt := buildAssimilationPrompt(conversationSnippet, candidates)
	resp, err := e.llm.Chat(ctx, []llmadapter.Message{
		{Role: llmadapter.RoleSystem, Content: assimilationSystemPrompt},
		{Role: llmadapter.RoleUser, Content: prompt},
	}, nil, llmadapter.ChatOptions{})
	if err != nil {
		return fmt.Errorf("ingest turn: llm call: %w", err)
	}

	decision, err := parseAssimilationDecision(resp.Content)
	if err != nil {
		return fmt.Errorf("ingest turn: parse decision: %w", err)
	}

	if err := e.applyDecision(ctx, contextID, decision, sourceMessageIDs); err != nil {
		return err
	}
	if e.audit != nil {
		e.audit.RecordAssimilation(ctx, contextID, decision)
	}
	return nil
}

// ProcessNewMessagesForUpdate is process_new_messages_for_update: the
// batched alternative to calling IngestTurn synchronously after every
// turn (§5 ordering guarantee (c)). It fetches every message appended
// since profile_last_processed_timestamp, pairs them into user/assistant
// turns, and assimilates each in order. The timestamp is advanced to a
// turn's assistant message *before* that turn is assimilated, so a
// failing turn is skipped on this pass and never retried — forward
// progress over completeness. Rerunning with no new messages is a no-op
// and leaves the persisted timestamp untouched (§8).
func (e *Engine) ProcessNewMessagesForUpdate(ctx context.Context, contextID string) error {
	lastStr, ok, err := e.store.GetMetadata(ctx, contextID, metaLastProcessedTimestamp)
	if err != nil {
		return fmt.Errorf("process new messages: read last-processed timestamp: %w", err)
	}
	var since time.Time
	if ok && lastStr != "" {
		since, err = time.Parse(time.RFC3339Nano, lastStr)
		if err != nil {
			return fmt.Errorf("process new messages: parse last-processed timestamp: %w", err)
		}
	}

	messages, err := e.store.MessagesSince(ctx, contextID, since)
	if err != nil {
		return fmt.Errorf("process new messages: list messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	turns := pairMessageTurns(messages)
	if len(turns) == 0 {
		// No complete turn yet, but advance past these orphan messages so
		// they aren't refetched every pass.
		last := messages[len(messages)-1].Timestamp
		return e.store.SetMetadata(ctx, contextID, metaLastProcessedTimestamp, last.UTC().Format(time.RFC3339Nano))
	}

	for i, turn := range turns {
		watermark := turn.assistant.Timestamp.UTC().Format(time.RFC3339Nano)
		if err := e.store.SetMetadata(ctx, contextID, metaLastProcessedTimestamp, watermark); err != nil {
			return fmt.Errorf("process new messages: advance timestamp: %w", err)
		}

		start := i - e.cfg.ExtractionContext
		if start < 0 {
			start = 0
		}
		snippet := buildTurnSnippet(turns[start : i+1])
		sourceIDs := []string{turn.user.ID, turn.assistant.ID}
		if err := e.IngestTurn(ctx, contextID, snippet, sourceIDs); err != nil {
			log.Warn().Err(err).Str("context", contextID).
				Msg("memory: turn assimilation failed, skipping (timestamp already advanced)")
		}
	}
	return nil
}

type messageTurn struct {
	user      textstore.Message
	assistant textstore.Message
}

// pairMessageTurns groups a chronological message slice into consecutive
// user->assistant pairs, dropping any unpaired leading/trailing messages.
func pairMessageTurns(messages []textstore.Message) []messageTurn {
	var turns []messageTurn
	for i := 1; i < len(messages); i++ {
		if messages[i].Role == textstore.RoleAssistant && messages[i-1].Role == textstore.RoleUser {
			turns = append(turns, messageTurn{user: messages[i-1], assistant: messages[i]})
		}
	}
	return turns
}

func buildTurnSnippet(turns []messageTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.user.Content, t.assistant.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

const assimilationSystemPrompt = `You maintain a durable memory store for a single user. Given the latest conversation turn and a list of candidate existing memories, decide exactly one action: "ignore" (no change), "reinforce" (strengthen an existing memory, optionally replacing its text), or "create" (a brand new key or extended memory). You may additionally mark superseded memories via past_memory_ids and exact duplicates via duplicates. Respond with a single JSON object: {"action":"ignore"|"reinforce"|"create","memory_id":"...","new_text":"...","target":"key"|"extended","topic":"...","text":"...","past_memory_ids":["..."],"duplicates":["..."]}. Omit fields that don't apply.`

func buildAssimilationPrompt(snippet string, candidates []Memory) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString(snippet)
	b.WriteString("\n\nCandidate memories:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s type=%s topic=%q text=%q relevance=%.2f status=%s\n", c.ID, c.Type, c.Topic, c.Text, c.Relevance, c.Status)
	}
	return b.String()
}

func parseAssimilationDecision(content string) (AssimilationDecision, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start > 0 {
		content = content[start:]
	}
	if end := strings.LastIndex(content, "}"); end >= 0 {
		content = content[:end+1]
	}
	var d AssimilationDecision
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return AssimilationDecision{}, fmt.Errorf("decode assimilation json: %w", err)
	}
	if d.Action == "" {
		d.Action = ActionIgnore
	}
	return d, nil
}

// candidateMemoriesForAssimilation runs a semantic search for the latest
// user utterance in snippet and loads the matching rows from textstore,
// bounded to limit candidates, keeping the LLM's decision prompt a fixed
// size regardless of how large the memory store grows. No other memories
// are merged into the result.
func (e *Engine) candidateMemoriesForAssimilation(ctx context.Context, contextID, snippet string, limit int) ([]Memory, error) {
	query := lastLine(snippet)
	lines := strings.Split(strings.TrimSpace(snippet), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], "User: ") {
			query = strings.TrimPrefix(lines[i], "User: ")
			break
		}
	}
	vec, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := e.vectors.SimilaritySearch(ctx, e.collection, vec, limit, map[string]string{"context_id": contextID})
	if err != nil {
		return nil, err
	}
	out := make([]Memory, 0, len(hits))
	for _, hit := range hits {
		row, err := e.store.GetMemory(ctx, hit.ID)
		if err != nil {
			continue
		}
		out = append(out, memoryFromRow(row, contextID))
	}
	return out, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func memoryFromRow(row textstore.MemoryRow, contextID string) Memory {
	return Memory{
		ID: row.ID, ContextID: contextID, Type: Kind(row.Type), Topic: row.Topic, Text: row.Text,
		Relevance: row.Relevance, Status: Status(row.Status), CreatedAt: row.CreatedAt, LastUpdated: row.LastUpdated,
		SourceMessageIDs: row.SourceMessageIDs,
	}
}

// applyDecision executes the assimilation order: past_memory_ids first,
// then the primary action, then duplicates.
func (e *Engine) applyDecision(ctx context.Context, contextID string, d AssimilationDecision, sourceMessageIDs []string) error {
	for _, id := range d.PastMemoryIDs {
		row, err := e.store.GetMemory(ctx, id)
		if err != nil {
			continue
		}
		row.Status = textstore.MemoryPast
		row.LastUpdated = time.Now().UTC()
		if err := e.store.UpdateMemory(ctx, row); err != nil {
			return fmt.Errorf("mark past memory %s: %w", id, err)
		}
	}

	switch d.Action {
	case ActionReinforce:
		if err := e.reinforce(ctx, d.MemoryID, d.NewText); err != nil {
			return err
		}
	case ActionCreate:
		if err := e.create(ctx, contextID, d, sourceMessageIDs); err != nil {
			return err
		}
	case ActionIgnore:
		// no-op
	}

	for _, dupID := range d.Duplicates {
		if err := e.consolidateDuplicate(ctx, d.MemoryID, dupID); err != nil {
			log.Warn().Err(err).Str("duplicate", dupID).Msg("memory: failed to consolidate duplicate")
		}
	}
	return nil
}

func (e *Engine) reinforce(ctx context.Context, memoryID, newText string) error {
	row, err := e.store.GetMemory(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("reinforce: get memory %s: %w", memoryID, err)
	}
	if row.Relevance < e.cfg.MaxRelevance {
		row.Relevance += e.cfg.ReinforceIncrement
		if row.Relevance > e.cfg.MaxRelevance {
			row.Relevance = e.cfg.MaxRelevance
		}
	}
	row.LastUpdated = time.Now().UTC()
	if strings.TrimSpace(newText) != "" {
		row.Text = newText
		vec, err := e.embed(ctx, newText)
		if err == nil {
			_ = e.vectors.Upsert(ctx, e.collection, row.ID, vec, memoryMetadata(row))
		}
	}
	return e.store.UpdateMemory(ctx, row)
}

func (e *Engine) create(ctx context.Context, contextID string, d AssimilationDecision, sourceMessageIDs []string) error {
	now := time.Now().UTC()
	row := textstore.MemoryRow{
		ID: uuid.NewString(), Type: textstore.MemoryKind(d.Target), Topic: d.Topic, Text: d.Text,
		Relevance: 1.0, Status: textstore.MemoryCurrent, CreatedAt: now, LastUpdated: now,
		SourceMessageIDs: sourceMessageIDs,
	}
	if row.Type == "" {
		row.Type = textstore.MemoryExtended
	}
	if err := e.store.InsertMemory(ctx, contextID, row); err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	vec, err := e.embed(ctx, row.Text)
	if err != nil {
		return fmt.Errorf("create memory: embed: %w", err)
	}
	return e.vectors.Upsert(ctx, e.collection, row.ID, vec, memoryMetadata(row))
}

// consolidateDuplicate sums dupID's relevance into keepID then deletes
// dupID from both stores.
func (e *Engine) consolidateDuplicate(ctx context.Context, keepID, dupID string) error {
	if keepID == "" || dupID == "" || keepID == dupID {
		return nil
	}
	dup, err := e.store.GetMemory(ctx, dupID)
	if err != nil {
		return err
	}
	keep, err := e.store.GetMemory(ctx, keepID)
	if err != nil {
		return err
	}
	keep.Relevance += dup.Relevance
	if keep.Relevance > e.cfg.MaxRelevance {
		keep.Relevance = e.cfg.MaxRelevance
	}
	if err := e.store.UpdateMemory(ctx, keep); err != nil {
		return err
	}
	if err := e.store.DeleteMemory(ctx, dupID); err != nil {
		return err
	}
	return e.vectors.Delete(ctx, e.collection, dupID)
}

// ApplyDecay multiplies current memories' relevance by CurrentDecayFactor
// and past memories' relevance by PastDecayFactor (f^4 in spec terms,
// precomputed into config). Call sites coalesce concurrent requests via
// internal/workers' singleflight wrapper; this method itself is not
// reentrant-safe across processes without that wrapper.
func (e *Engine) ApplyDecay(ctx context.Context, contextID string) error {
	current, err := e.store.ListMemories(ctx, contextID, textstore.MemoryCurrent)
	if err != nil {
		return fmt.Errorf("decay: list current: %w", err)
	}
	for _, row := range current {
		row.Relevance *= e.cfg.CurrentDecayFactor
		if err := e.store.UpdateMemory(ctx, row); err != nil {
			return fmt.Errorf("decay: update %s: %w", row.ID, err)
		}
	}
	past, err := e.store.ListMemories(ctx, contextID, textstore.MemoryPast)
	if err != nil {
		return fmt.Errorf("decay: list past: %w", err)
	}
	for _, row := range past {
		row.Relevance *= e.cfg.PastDecayFactor
		if err := e.store.UpdateMemory(ctx, row); err != nil {
			return fmt.Errorf("decay: update %s: %w", row.ID, err)
		}
	}
	return nil
}

// GetRelevantMemories is get_relevant_memories: gated on query
// substantiveness, scored and sorted as scoring.go implements, with past
// memories that make the cut flagged for display.
func (e *Engine) GetRelevantMemories(ctx context.Context, contextID, query string, excludeIDs []string) ([]Scored, error) {
	if !isQuerySubstantive(query) {
		return nil, nil
	}

	topK := retrievalTopK(e.llm.ContextWindow())
	vec, err := e.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get relevant memories: embed query: %w", err)
	}

	hits, err := e.vectors.SimilaritySearch(ctx, e.collection, vec, topK*3, map[string]string{"context_id": contextID})
	if err != nil {
		return nil, fmt.Errorf("get relevant memories: search: %w", err)
	}

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	relevantTopics := e.relevantTopicsForContext(ctx, contextID, query)
	cfg := e.scoringConfig()
	now := time.Now().UTC()

	scored := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		if excluded[hit.ID] {
			continue
		}
		row, err := e.store.GetMemory(ctx, hit.ID)
		if err != nil {
			continue
		}
		m := memoryFromRow(row, contextID)
		l2Distance := 2 * (1 - hit.Score) // invert store.Score back to an L2-style distance for scoreCandidate
		topicBoosted := relevantTopics[m.Topic]
		score := scoreCandidate(cfg, m, l2Distance, topicBoosted, now)
		if m.Status == StatusPast {
			m.Text = "[This is an older, possibly outdated memory] " + m.Text
		}
		scored = append(scored, Scored{Memory: m, Score: score})
	}

	sortScoredDesc(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func sortScoredDesc(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// relevantTopicsForContext identifies topics "semantically relevant to the
// query" among the context's existing topics, a lightweight stand-in for
// the original's own topic-embedding comparison: any topic whose words
// overlap the query's words qualifies.
func (e *Engine) relevantTopicsForContext(ctx context.Context, contextID, query string) map[string]bool {
	rows, err := e.store.ListMemories(ctx, contextID, "")
	if err != nil {
		return nil
	}
	queryWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		queryWords[strings.Trim(w, ".,!?;:")] = true
	}
	out := make(map[string]bool)
	for _, row := range rows {
		for _, w := range strings.Fields(strings.ToLower(row.Topic)) {
			if queryWords[w] {
				out[row.Topic] = true
				break
			}
		}
	}
	return out
}

// GenerateUserProfileSummary synthesizes a coherent paragraph from the
// top-k highest-relevance key memories, prioritizing higher-relevance
// facts when they conflict.
func (e *Engine) GenerateUserProfileSummary(ctx context.Context, contextID string) (string, error) {
	topK := profileTopK(e.llm.ContextWindow())
	rows, err := e.store.ListMemories(ctx, contextID, textstore.MemoryCurrent)
	if err != nil {
		return "", err
	}
	keyRows := filterAndSortByRelevance(rows, textstore.MemoryKey, topK)
	if len(keyRows) == 0 {
		return "", nil
	}
	return e.summarize(ctx, keyRows, "Synthesize a coherent paragraph describing the user, prioritizing higher-relevance facts when they conflict.")
}

// GenerateRecentMemoriesSummary synthesizes a narrative from the top-k
// most recently updated current memories.
func (e *Engine) GenerateRecentMemoriesSummary(ctx context.Context, contextID string) (string, error) {
	topK := profileTopK(e.llm.ContextWindow())
	rows, err := e.store.ListMemories(ctx, contextID, textstore.MemoryCurrent)
	if err != nil {
		return "", err
	}
	sortByRecency(rows)
	if len(rows) > topK {
		rows = rows[:topK]
	}
	return e.summarize(ctx, rows, "Summarize these recent facts as a short narrative of what has happened lately.")
}

func filterAndSortByRelevance(rows []textstore.MemoryRow, kind textstore.MemoryKind, topK int) []textstore.MemoryRow {
	var filtered []textstore.MemoryRow
	for _, r := range rows {
		if r.Type == kind {
			filtered = append(filtered, r)
		}
	}
	for i := 1; i < len(filtered); i++ {
		for j := i; j > 0 && filtered[j].Relevance > filtered[j-1].Relevance; j-- {
			filtered[j], filtered[j-1] = filtered[j-1], filtered[j]
		}
	}
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered
}

func sortByRecency(rows []textstore.MemoryRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].LastUpdated.After(rows[j-1].LastUpdated); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

func (e *Engine) summarize(ctx context.Context, rows []textstore.MemoryRow, instruction string) (string, error) {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "- (%s, relevance %.1f) %s\n", r.Topic, r.Relevance, r.Text)
	}
	resp, err := e.llm.Chat(ctx, []llmadapter.Message{
		{Role: llmadapter.RoleSystem, Content: instruction},
		{Role: llmadapter.RoleUser, Content: b.String()},
	}, nil, llmadapter.ChatOptions{})
	if err != nil {
		return "", fmt.Errorf("summarize: llm call: %w", err)
	}
	return resp.Content, nil
}
