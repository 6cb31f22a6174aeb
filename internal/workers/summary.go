package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"orakle/internal/llmadapter"
	"orakle/internal/textstore"
)

// SummaryTask is a unit of work for the Summary worker: the messages
// trimmed out of a turn's context window that still need folding into
// the running conversation summary.
type SummaryTask struct {
	ContextID string
	Messages  []textstore.Message
}

// SummarySlot is the mutex-protected `new_summary` handoff (§5): the
// Summary worker publishes into it, the Conversation Manager reads and
// clears it atomically at the start of its next turn for the same
// context.
type SummarySlot struct {
	mu     sync.Mutex
	values map[string]string
}

func NewSummarySlot() *SummarySlot {
	return &SummarySlot{values: make(map[string]string)}
}

func (s *SummarySlot) set(contextID, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[contextID] = summary
}

// TakeFor reads and clears any pending summary for contextID in one
// atomic step, so a summary is never applied twice.
func (s *SummarySlot) TakeFor(contextID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[contextID]
	if ok {
		delete(s.values, contextID)
	}
	return v, ok
}

// CurrentSummaryFunc fetches the existing current_summary metadata value
// for a context (empty string and a nil error if none exists yet).
type CurrentSummaryFunc func(ctx context.Context, contextID string) (string, error)

// SummaryWorker is the single-slot executor of §4.6: at most one pending
// task is held at a time; a Submit for a context already queued merges
// its messages into the pending task rather than dropping either.
type SummaryWorker struct {
	mu      sync.Mutex
	pending *SummaryTask
	wake    chan struct{}

	llm            llmadapter.Provider
	slot           *SummarySlot
	budgetFraction float64
	getCurrent     CurrentSummaryFunc
}

func NewSummaryWorker(llm llmadapter.Provider, slot *SummarySlot, budgetFraction float64, getCurrent CurrentSummaryFunc) *SummaryWorker {
	if budgetFraction <= 0 {
		budgetFraction = 0.05
	}
	return &SummaryWorker{
		wake:           make(chan struct{}, 1),
		llm:            llm,
		slot:           slot,
		budgetFraction: budgetFraction,
		getCurrent:     getCurrent,
	}
}

// TakeNewSummary reads and clears any pending summary for contextID,
// the "Conversation Manager reads and clears this slot atomically on
// the next turn" half of §4.6's handoff.
func (w *SummaryWorker) TakeNewSummary(contextID string) (string, bool) {
	return w.slot.TakeFor(contextID)
}

// Submit enqueues messages for summarization. If a task for the same
// context is already waiting to be picked up, the new messages are
// appended to it instead of replacing it or being dropped.
func (w *SummaryWorker) Submit(task SummaryTask) {
	if len(task.Messages) == 0 {
		return
	}
	w.mu.Lock()
	if w.pending != nil && w.pending.ContextID == task.ContextID {
		w.pending.Messages = append(w.pending.Messages, task.Messages...)
	} else {
		t := task
		w.pending = &t
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drives the worker's loop until ctx is cancelled.
func (w *SummaryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.wake:
			w.processOnce(ctx)
		}
	}
}

func (w *SummaryWorker) processOnce(ctx context.Context) {
	w.mu.Lock()
	task := w.pending
	w.pending = nil
	w.mu.Unlock()
	if task == nil {
		return
	}

	summary, err := w.summarize(ctx, *task)
	if err != nil {
		log.Warn().Err(err).Str("context", task.ContextID).Msg("workers: summary task failed, requeuing")
		w.Submit(*task)
		return
	}
	w.slot.set(task.ContextID, summary)
}

func (w *SummaryWorker) summarize(ctx context.Context, task SummaryTask) (string, error) {
	current, err := w.getCurrent(ctx, task.ContextID)
	if err != nil {
		return "", fmt.Errorf("summary: read current summary: %w", err)
	}

	var b strings.Builder
	if current != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(current)
		b.WriteString("\n\n")
	}
	b.WriteString("New messages to incorporate:\n")
	for _, m := range task.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	instruction := "Produce an updated running summary of this conversation incorporating the new messages. Be concise; preserve facts that matter for future turns."
	resp, err := w.llm.Chat(ctx, []llmadapter.Message{
		{Role: llmadapter.RoleSystem, Content: instruction},
		{Role: llmadapter.RoleUser, Content: b.String()},
	}, nil, llmadapter.ChatOptions{})
	if err != nil {
		return "", fmt.Errorf("summary: llm call: %w", err)
	}

	budget := int(float64(w.llm.ContextWindow()) * w.budgetFraction)
	return truncateToBudget(w.llm, resp.Content, budget), nil
}

// truncateToBudget shrinks text to fit within budget tokens (as measured
// by the adapter's own TokenCount), cutting at the last sentence
// boundary it can find rather than mid-word, per §4.6's "truncate at the
// last sentence boundary if exceeded".
func truncateToBudget(llm llmadapter.Provider, text string, budget int) string {
	if budget <= 0 || llm.TokenCount(llmadapter.RoleAssistant, text) <= budget {
		return text
	}

	maxChars := len(text)
	for i := 0; i < 6; i++ {
		ratio := float64(budget) / float64(llm.TokenCount(llmadapter.RoleAssistant, text[:maxChars]))
		if ratio >= 1 {
			break
		}
		maxChars = int(float64(maxChars) * ratio)
		if maxChars <= 0 {
			maxChars = 1
			break
		}
		if llm.TokenCount(llmadapter.RoleAssistant, text[:maxChars]) <= budget {
			break
		}
	}
	if maxChars > len(text) {
		maxChars = len(text)
	}

	cut := text[:maxChars]
	if idx := lastSentenceBoundary(cut); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func lastSentenceBoundary(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(s, sep); idx > best {
			best = idx + 1 // keep the punctuation, drop what follows
		}
	}
	return best
}
