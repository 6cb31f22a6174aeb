package workers

import (
	"context"
	"strings"
	"testing"
	"time"

	"orakle/internal/llmadapter"
	"orakle/internal/textstore"
)

type fakeLLM struct {
	chatResponse  string
	contextWindow int
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []llmadapter.Message, tools []llmadapter.ToolSchema, opts llmadapter.ChatOptions) (llmadapter.Message, error) {
	return llmadapter.Message{Role: llmadapter.RoleAssistant, Content: f.chatResponse}, nil
}
func (f *fakeLLM) ChatStream(ctx context.Context, msgs []llmadapter.Message, tools []llmadapter.ToolSchema, opts llmadapter.ChatOptions, h llmadapter.StreamHandler) error {
	return nil
}
func (f *fakeLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }
func (f *fakeLLM) TokenCount(role llmadapter.Role, text string) int               { return len(text) / 4 }
func (f *fakeLLM) ContextWindow() int                                             { return f.contextWindow }
func (f *fakeLLM) SupportsReasoning() bool                                        { return false }
func (f *fakeLLM) Model() string                                                  { return "fake" }

func TestSummaryWorker_ProcessesSubmittedTask(t *testing.T) {
	llm := &fakeLLM{chatResponse: "the user likes coffee.", contextWindow: 100000}
	slot := NewSummarySlot()
	w := NewSummaryWorker(llm, slot, 0.05, func(ctx context.Context, contextID string) (string, error) {
		return "", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Submit(SummaryTask{ContextID: "ctx1", Messages: []textstore.Message{
		{Role: textstore.RoleUser, Content: "I love coffee"},
	}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := slot.TakeFor("ctx1"); ok {
			if v != "the user likes coffee." {
				t.Fatalf("got %q", v)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("summary never published to slot")
}

func TestSummaryWorker_MergesPendingForSameContext(t *testing.T) {
	llm := &fakeLLM{chatResponse: "merged", contextWindow: 100000}
	slot := NewSummarySlot()
	w := NewSummaryWorker(llm, slot, 0.05, func(ctx context.Context, contextID string) (string, error) {
		return "", nil
	})

	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	// Submit twice before the worker loop starts running; both should
	// merge into one pending task rather than the second replacing the
	// first's messages.
	w.Submit(SummaryTask{ContextID: "ctx1", Messages: []textstore.Message{{Role: textstore.RoleUser, Content: "a"}}})
	w.Submit(SummaryTask{ContextID: "ctx1", Messages: []textstore.Message{{Role: textstore.RoleUser, Content: "b"}}})

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil || len(w.pending.Messages) != 2 {
		t.Fatalf("expected merged pending task with 2 messages, got %v", w.pending)
	}
}

func TestTruncateToBudget_CutsAtSentenceBoundary(t *testing.T) {
	llm := &fakeLLM{contextWindow: 1000}
	text := "This is sentence one. This is sentence two. This is sentence three that is much longer than the others and pushes well over budget."
	got := truncateToBudget(llm, text, 10) // ~40 chars worth of tokens
	if got == text {
		t.Fatalf("expected truncation, got unchanged text")
	}
	if strings.HasSuffix(got, "that is much longer than the others and pushes well over budget.") {
		t.Fatalf("expected truncation before the final long sentence, got %q", got)
	}
}

func TestTruncateToBudget_NoOpWhenUnderBudget(t *testing.T) {
	llm := &fakeLLM{contextWindow: 1000}
	text := "short text"
	if got := truncateToBudget(llm, text, 1000); got != text {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}
