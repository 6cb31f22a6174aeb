package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"

	"orakle/internal/config"
	"orakle/internal/dispatch"
	"orakle/internal/events"
	"orakle/internal/llmadapter"
	"orakle/internal/textstore"
)

// fakeMetadataStore is an in-memory stand-in for *textstore.Store's
// db_metadata side-table, letting slash-command and bookkeeping logic be
// tested without a live Postgres pool.
type fakeMetadataStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{data: make(map[string]string)}
}

func mdKey(contextID, key string) string { return contextID + "|" + key }

func (f *fakeMetadataStore) GetMetadata(ctx context.Context, contextID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[mdKey(contextID, key)]
	return v, ok, nil
}

func (f *fakeMetadataStore) SetMetadata(ctx context.Context, contextID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[mdKey(contextID, key)] = value
	return nil
}

func (f *fakeMetadataStore) DeleteMetadata(ctx context.Context, contextID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, mdKey(contextID, key))
	return nil
}

type fakeOutputWriter struct {
	events []events.Event
}

func (w *fakeOutputWriter) Write(e events.Event) error {
	w.events = append(w.events, e)
	return nil
}

type fakeLLM struct {
	contextWindow int
	supportsReas  bool
	streamDeltas  []string
	tokenCount    func(role llmadapter.Role, text string) int
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []llmadapter.Message, tools []llmadapter.ToolSchema, opts llmadapter.ChatOptions) (llmadapter.Message, error) {
	return llmadapter.Message{Role: llmadapter.RoleAssistant, Content: "ok"}, nil
}
func (f *fakeLLM) ChatStream(ctx context.Context, msgs []llmadapter.Message, tools []llmadapter.ToolSchema, opts llmadapter.ChatOptions, h llmadapter.StreamHandler) error {
	for _, d := range f.streamDeltas {
		h.OnDelta(d)
	}
	return nil
}
func (f *fakeLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }
func (f *fakeLLM) TokenCount(role llmadapter.Role, text string) int {
	if f.tokenCount != nil {
		return f.tokenCount(role, text)
	}
	return len(text) / 4
}
func (f *fakeLLM) ContextWindow() int      { return f.contextWindow }
func (f *fakeLLM) SupportsReasoning() bool { return f.supportsReas }
func (f *fakeLLM) Model() string           { return "fake" }

func testManager(llm llmadapter.Provider, store metadataStore) *Manager {
	return &Manager{
		store:    store,
		dispatch: dispatch.New(nil, nil, llm, nil, 0, 5, 0),
		llm:      llm,
		cfg:      config.ConversationConfig{MaxGuardrailRetries: 2, MaxReasoningLevel: 0.6},
	}
}

func TestHandleSlashCommand_MemoryToggle(t *testing.T) {
	store := newFakeMetadataStore()
	m := testManager(&fakeLLM{}, store)
	out := &fakeOutputWriter{}

	handled, err := m.handleSlashCommand(context.Background(), "ctx1", "/memory", out)
	if !handled || err != nil {
		t.Fatalf("expected handled, got handled=%v err=%v", handled, err)
	}
	v, ok, _ := store.GetMetadata(context.Background(), "ctx1", "memory_enabled")
	if !ok || v != "true" {
		t.Fatalf("expected memory_enabled=true, got %q ok=%v", v, ok)
	}

	handled, err = m.handleSlashCommand(context.Background(), "ctx1", "/nomemory", out)
	if !handled || err != nil {
		t.Fatalf("expected handled, got handled=%v err=%v", handled, err)
	}
	v, _, _ = store.GetMetadata(context.Background(), "ctx1", "memory_enabled")
	if v != "false" {
		t.Fatalf("expected memory_enabled=false, got %q", v)
	}
}

func TestHandleSlashCommand_TestDocView(t *testing.T) {
	m := testManager(&fakeLLM{}, newFakeMetadataStore())
	out := &fakeOutputWriter{}

	handled, err := m.handleSlashCommand(context.Background(), "ctx1", "/testdocview markdown,# hello", out)
	if !handled || err != nil {
		t.Fatalf("expected handled, got handled=%v err=%v", handled, err)
	}
	if len(out.events) != 2 {
		t.Fatalf("expected setView + content/full, got %v", out.events)
	}
	sv, ok := out.events[0].(events.SetView)
	if !ok || sv.Format != "markdown" {
		t.Fatalf("expected setView markdown, got %#v", out.events[0])
	}
	cf, ok := out.events[1].(events.ContentFull)
	if !ok || cf.Content != "# hello" {
		t.Fatalf("expected content/full, got %#v", out.events[1])
	}
}

func TestHandleSlashCommand_TestNexus(t *testing.T) {
	m := testManager(&fakeLLM{}, newFakeMetadataStore())
	out := &fakeOutputWriter{}

	handled, err := m.handleSlashCommand(context.Background(), "ctx1", `/testnexus acme,widgets,Card {"title":"hi"}`, out)
	if !handled || err != nil {
		t.Fatalf("expected handled, got handled=%v err=%v", handled, err)
	}
	if len(out.events) != 1 {
		t.Fatalf("expected one event, got %v", out.events)
	}
	rn, ok := out.events[0].(events.RenderNexus)
	if !ok || rn.ComponentPath != "acme/widgets/Card" {
		t.Fatalf("expected renderNexus with acme/widgets/Card, got %#v", out.events[0])
	}
}

func TestHandleSlashCommand_NotASlashCommand(t *testing.T) {
	m := testManager(&fakeLLM{}, newFakeMetadataStore())
	handled, err := m.handleSlashCommand(context.Background(), "ctx1", "what's the weather", &fakeOutputWriter{})
	if handled || err != nil {
		t.Fatalf("expected not handled, got handled=%v err=%v", handled, err)
	}
}

func TestTrimContext_KeepsEverythingUnderBudget(t *testing.T) {
	llm := &fakeLLM{contextWindow: 100000}
	m := testManager(llm, newFakeMetadataStore())
	sysMsg := llmadapter.Message{Role: llmadapter.RoleSystem, Content: "sys"}
	history := []textstore.Message{
		{Role: textstore.RoleUser, Content: "hi", Tokens: 1},
		{Role: textstore.RoleAssistant, Content: "hello", Tokens: 1},
	}
	msgs, trimmed := m.trimContext(sysMsg, history, "how are you")
	if trimmed != nil {
		t.Fatalf("expected nothing trimmed, got %v", trimmed)
	}
	if len(msgs) != 4 { // system + 2 history + new user
		t.Fatalf("expected 4 messages, got %d: %v", len(msgs), msgs)
	}
}

func TestTrimContext_OverBudgetBuffersOnlyFirstOverflow(t *testing.T) {
	llm := &fakeLLM{contextWindow: 50, tokenCount: func(role llmadapter.Role, text string) int { return 20 }}
	m := testManager(llm, newFakeMetadataStore())
	sysMsg := llmadapter.Message{Role: llmadapter.RoleSystem, Content: "sys"}
	// sysTokens=20. Each history message costs 20. New user msg costs 20 too.
	history := []textstore.Message{
		{Role: textstore.RoleUser, Content: "oldest", Tokens: 20},
		{Role: textstore.RoleAssistant, Content: "older-reply", Tokens: 20},
		{Role: textstore.RoleUser, Content: "prev", Tokens: 20},
		{Role: textstore.RoleAssistant, Content: "prev-reply", Tokens: 20},
	}
	msgs, trimmed := m.trimContext(sysMsg, history, "new question")
	// unconditional pair = prev-reply + new question (20+20=40) + sys(20) = 60 > window(50)
	// so nothing else fits; the walk starts at "prev" (index 2) which doesn't fit either.
	if len(trimmed) != 1 {
		t.Fatalf("expected exactly one trimmed message, got %d: %v", len(trimmed), trimmed)
	}
	if trimmed[0].Content != "prev" {
		t.Fatalf("expected 'prev' as the first overflow message, got %q", trimmed[0].Content)
	}
	_ = msgs
}

func TestStreamWithGuardrailRetry_SucceedsWithoutGuardrail(t *testing.T) {
	llm := &fakeLLM{streamDeltas: []string{"hello ", "world"}}
	m := testManager(llm, newFakeMetadataStore())
	sink, err := m.streamWithGuardrailRetry(context.Background(), "ctx1", nil, "", dispatch.ChatContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.fullText() != "hello world" {
		t.Fatalf("got %q", sink.fullText())
	}
}

func TestStreamWithGuardrailRetry_ExhaustsRetriesOnPersistentGuardrail(t *testing.T) {
	llm := &fakeLLM{streamDeltas: []string{dispatch.GuardrailMarker}}
	m := testManager(llm, newFakeMetadataStore())
	m.cfg.MaxGuardrailRetries = 1
	_, err := m.streamWithGuardrailRetry(context.Background(), "ctx1", nil, "", dispatch.ChatContext{})
	if err == nil || !strings.Contains(err.Error(), "guardrail") {
		t.Fatalf("expected guardrail exhaustion error, got %v", err)
	}
}

func TestFlush_PlainTextEmitsMessageStream(t *testing.T) {
	m := testManager(&fakeLLM{}, newFakeMetadataStore())
	sink := &bufferSink{}
	sink.Text("hello there")
	out := &fakeOutputWriter{}

	text, err := m.flush(context.Background(), "ctx1", sink, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("got %q", text)
	}
	if len(out.events) != 1 {
		t.Fatalf("expected one event, got %v", out.events)
	}
	ms, ok := out.events[0].(events.MessageStream)
	if !ok || ms.Content != "hello there" {
		t.Fatalf("expected message/stream, got %#v", out.events[0])
	}
}

func TestFlush_DocumentBlockEmitsSetViewAndContentFull(t *testing.T) {
	m := testManager(&fakeLLM{}, newFakeMetadataStore())
	sink := &bufferSink{}
	sink.Text("```go\nfmt.Println(1)\n```\n")
	out := &fakeOutputWriter{}

	if _, err := m.flush(context.Background(), "ctx1", sink, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawOpen, sawBody bool
	for _, e := range out.events {
		if sv, ok := e.(events.SetView); ok && sv.Format == "go" {
			sawOpen = true
		}
		if cf, ok := e.(events.ContentFull); ok && cf.Content == "fmt.Println(1)" {
			sawBody = true
		}
	}
	if !sawOpen || !sawBody {
		t.Fatalf("expected setView+content/full, got %v", out.events)
	}
}

func TestBumpDecayCounter_SubmitsAtThreshold(t *testing.T) {
	store := newFakeMetadataStore()
	m := testManager(&fakeLLM{}, store)
	m.memCfg.DecayIntervalTurns = 2

	if err := m.bumpDecayCounter(context.Background(), "ctx1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _, _ := store.GetMetadata(context.Background(), "ctx1", "profile_decay_turn_counter")
	if v != "1" {
		t.Fatalf("expected counter=1, got %q", v)
	}

	if err := m.bumpDecayCounter(context.Background(), "ctx1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _, _ = store.GetMetadata(context.Background(), "ctx1", "profile_decay_turn_counter")
	if v != "0" {
		t.Fatalf("expected counter reset to 0 at threshold, got %q", v)
	}
}
