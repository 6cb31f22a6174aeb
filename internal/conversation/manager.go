// Package conversation implements the Conversation Manager (C9, §4.5):
// the per-turn orchestrator tying together slash-command handling, the
// reasoning heuristic, system-message composition, context trimming, the
// streaming LLM call, Dispatch Middleware routing with guardrail retry,
// the document-block and TTS post-processing passes, and end-of-turn
// bookkeeping. Grounded on manifold's own request-orchestration handlers
// (internal/api/handlers.go) for the overall "compose -> call -> stream
// -> persist" shape, generalized to this engine's multi-stage pipeline.
package conversation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"orakle/internal/chatmemory"
	"orakle/internal/config"
	"orakle/internal/dispatch"
	"orakle/internal/events"
	"orakle/internal/llmadapter"
	"orakle/internal/memory"
	"orakle/internal/reasoning"
	"orakle/internal/templates"
	"orakle/internal/textstore"
	"orakle/internal/workers"
)

// OutputWriter is the NDJSON sink a turn writes its events to.
// *events.Writer satisfies this directly.
type OutputWriter interface {
	Write(e events.Event) error
}

// TTS is the optional speech-synthesis backend for step 8. A Manager
// with no TTS configured streams text as-is, matching §4.5's "without
// TTS, stream text as-is".
type TTS interface {
	Synthesize(ctx context.Context, contextID, text string) (url, format string, duration float64, err error)
}

// metadataStore is the slice of *textstore.Store the Conversation
// Manager needs — the per-context db_metadata key/value side-table.
// Declared locally (rather than imported as a concrete type) so tests
// can exercise slash-command and bookkeeping logic against an in-memory
// fake instead of a live Postgres pool.
type metadataStore interface {
	GetMetadata(ctx context.Context, contextID, key string) (value string, ok bool, err error)
	SetMetadata(ctx context.Context, contextID, key, value string) error
	DeleteMetadata(ctx context.Context, contextID, key string) error
}

// Manager is the Conversation Manager. One Manager instance serves every
// context; per-context state lives in textstore metadata and the
// workers' slots, not on this struct.
type Manager struct {
	log       *chatmemory.Log
	store     metadataStore
	memory    *memory.Engine
	dispatch  *dispatch.Dispatcher
	llm       llmadapter.Provider
	templates *templates.Renderer
	pool      *workers.Pool
	cfg       config.ConversationConfig
	memCfg    config.MemoryConfig
	tts       TTS
}

func New(log *chatmemory.Log, store *textstore.Store, mem *memory.Engine, d *dispatch.Dispatcher, llm llmadapter.Provider, tmpl *templates.Renderer, pool *workers.Pool, cfg config.ConversationConfig, memCfg config.MemoryConfig, tts TTS) *Manager {
	return &Manager{
		log: log, store: store, memory: mem, dispatch: d, llm: llm,
		templates: tmpl, pool: pool, cfg: cfg, memCfg: memCfg, tts: tts,
	}
}

// RunTurn executes the full nine-step turn contract for one user
// message and writes every resulting event to out. A non-nil error
// indicates a turn-terminating failure; by the time it returns, an
// error signal and a completed signal have already been written.
func (m *Manager) RunTurn(ctx context.Context, contextID, userText string, out OutputWriter) error {
	if handled, err := m.handleSlashCommand(ctx, contextID, userText, out); handled {
		if err != nil {
			return m.fail(out, err)
		}
		_ = out.Write(events.Completed{})
		return nil
	}

	memEnabled, err := m.memoryEnabled(ctx, contextID)
	if err != nil {
		log.Warn().Err(err).Str("context", contextID).Msg("conversation: memory-enabled lookup failed, defaulting to disabled")
	}

	convSummary, err := m.currentSummary(ctx, contextID)
	if err != nil {
		log.Warn().Err(err).Str("context", contextID).Msg("conversation: current summary lookup failed")
	}

	sysCtx, err := m.composeSystemMessage(ctx, contextID, userText, memEnabled, convSummary)
	if err != nil {
		return m.fail(out, fmt.Errorf("conversation: compose system message: %w", err))
	}

	history, err := m.log.Recent(ctx, contextID, 0)
	if err != nil {
		return m.fail(out, fmt.Errorf("conversation: load history: %w", err))
	}

	llmMessages, trimmed := m.trimContext(sysCtx.Message, history, userText)
	if len(trimmed) > 0 && m.pool != nil && m.pool.Summary() != nil {
		m.pool.Summary().Submit(workers.SummaryTask{ContextID: contextID, Messages: trimmed})
	}

	score := reasoning.Level(userText, m.cfg.MaxReasoningLevel)
	effort := ""
	if m.llm.SupportsReasoning() {
		effort = reasoning.EffortLevel(score, m.cfg.MaxReasoningLevel)
	}

	_ = out.Write(events.LoadingSignal{State: "start", Reasoning: score})

	chatCtx := dispatch.ChatContext{
		ProfileSummary:      sysCtx.ProfileSummary,
		ConversationSummary: convSummary,
		RecentMessages:      recentForDispatch(history),
	}

	sink, err := m.streamWithGuardrailRetry(ctx, contextID, llmMessages, effort, chatCtx)
	if err != nil {
		_ = out.Write(events.LoadingSignal{State: "stop"})
		return m.fail(out, err)
	}

	assistantText, err := m.flush(ctx, contextID, sink, out)
	if err != nil {
		_ = out.Write(events.LoadingSignal{State: "stop"})
		return m.fail(out, fmt.Errorf("conversation: flush turn output: %w", err))
	}

	_ = out.Write(events.LoadingSignal{State: "stop"})

	userID, err := m.log.Append(ctx, contextID, textstore.RoleUser, userText, m.llm.TokenCount(llmadapter.RoleUser, userText))
	if err != nil {
		log.Warn().Err(err).Str("context", contextID).Msg("conversation: failed to append user message")
	}
	assistantID, err := m.log.Append(ctx, contextID, textstore.RoleAssistant, assistantText, m.llm.TokenCount(llmadapter.RoleAssistant, assistantText))
	if err != nil {
		log.Warn().Err(err).Str("context", contextID).Msg("conversation: failed to append assistant message")
	}

	if memEnabled && m.memory != nil {
		snippet := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)
		if err := m.memory.IngestTurn(ctx, contextID, snippet, []string{userID, assistantID}); err != nil {
			log.Warn().Err(err).Str("context", contextID).Msg("conversation: memory ingestion failed")
		}
	}

	if m.memCfg.Enabled {
		if err := m.bumpDecayCounter(ctx, contextID); err != nil {
			log.Warn().Err(err).Str("context", contextID).Msg("conversation: decay counter update failed")
		}
	}

	return out.Write(events.Completed{})
}

func (m *Manager) fail(out OutputWriter, err error) error {
	_ = out.Write(events.ErrorSignal{Message: err.Error()})
	_ = out.Write(events.Completed{})
	return err
}

func (m *Manager) memoryEnabled(ctx context.Context, contextID string) (bool, error) {
	if !m.memCfg.Enabled {
		return false, nil
	}
	val, ok, err := m.store.GetMetadata(ctx, contextID, "memory_enabled")
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return val != "false", nil
}

// currentSummary reads and clears any pending new_summary the Summary
// worker has published for contextID, promoting it to current_summary
// metadata, then returns the (possibly just-updated) current summary.
func (m *Manager) currentSummary(ctx context.Context, contextID string) (string, error) {
	if m.pool != nil && m.pool.Summary() != nil {
		if fresh, ok := m.pool.Summary().TakeNewSummary(contextID); ok {
			if err := m.store.SetMetadata(ctx, contextID, "current_summary", fresh); err != nil {
				log.Warn().Err(err).Str("context", contextID).Msg("conversation: failed to persist new summary")
			}
			return fresh, nil
		}
	}
	val, ok, err := m.store.GetMetadata(ctx, contextID, "current_summary")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return val, nil
}

func (m *Manager) bumpDecayCounter(ctx context.Context, contextID string) error {
	raw, ok, err := m.store.GetMetadata(ctx, contextID, "profile_decay_turn_counter")
	if err != nil {
		return err
	}
	n := 0
	if ok {
		n, _ = strconv.Atoi(raw)
	}
	n++
	if n >= m.memCfg.DecayIntervalTurns {
		if m.pool != nil && m.pool.Decay() != nil {
			m.pool.Decay().Submit(contextID)
		}
		n = 0
	}
	return m.store.SetMetadata(ctx, contextID, "profile_decay_turn_counter", strconv.Itoa(n))
}

func toLLMMessages(msgs []textstore.Message) []llmadapter.Message {
	out := make([]llmadapter.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = llmadapter.Message{Role: llmadapter.Role(msg.Role), Content: msg.Content}
	}
	return out
}

// recentForDispatch narrows history to the last ~4 non-system messages,
// the grounding the command-interpretation prompt (§4.3 step 7) may use.
func recentForDispatch(history []textstore.Message) []llmadapter.Message {
	nonSystem := make([]textstore.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role != textstore.RoleSystem {
			nonSystem = append(nonSystem, msg)
		}
	}
	const limit = 4
	if len(nonSystem) > limit {
		nonSystem = nonSystem[len(nonSystem)-limit:]
	}
	return toLLMMessages(nonSystem)
}
