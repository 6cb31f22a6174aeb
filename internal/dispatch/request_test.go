package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orakle/internal/config"
	"orakle/internal/events"
	"orakle/internal/llmadapter"
	"orakle/internal/matcher"
	"orakle/internal/registry"
	"orakle/internal/templates"
)

// fakeProvider implements llmadapter.Provider with scripted responses so
// request processing can be exercised without a live model.
type fakeProvider struct {
	chatResponse   string
	streamDeltas   []string
	embedDims      int
	lastChatPrompt string
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llmadapter.Message, tools []llmadapter.ToolSchema, opts llmadapter.ChatOptions) (llmadapter.Message, error) {
	if len(msgs) > 0 {
		f.lastChatPrompt = msgs[len(msgs)-1].Content
	}
	return llmadapter.Message{Role: llmadapter.RoleAssistant, Content: f.chatResponse}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llmadapter.Message, tools []llmadapter.ToolSchema, opts llmadapter.ChatOptions, h llmadapter.StreamHandler) error {
	for _, d := range f.streamDeltas {
		h.OnDelta(d)
	}
	return nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.embedDims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) TokenCount(role llmadapter.Role, text string) int { return len(text) / 4 }
func (f *fakeProvider) ContextWindow() int                               { return 32768 }
func (f *fakeProvider) SupportsReasoning() bool                         { return false }
func (f *fakeProvider) Model() string                                   { return "fake-model" }

func newTestDispatcher(t *testing.T, manifest []registry.SkillDescriptor, runResponse string) (*Dispatcher, *httptest.Server, *fakeProvider) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/capabilities", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(manifest)
	})
	mux.HandleFunc("/run/weather", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(runResponse))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	reg := registry.New(config.RegistryConfig{Servers: []config.SkillServer{{BaseURL: srv.URL}}, MaxRetries: 1}, srv.Client(), nil, nil)

	provider := &fakeProvider{embedDims: 4}
	m := matcher.New(provider, nil)
	if err := m.Register(context.Background(), "weather", "reports current weather conditions", "", 1.0); err != nil {
		t.Fatalf("register skill: %v", err)
	}

	tmpl, err := templates.New(nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	d := New(m, reg, provider, tmpl, 0.0, 5, 0)
	return d, srv, provider
}

func TestProcessCommand_RegularSkillStreamsInterpretation(t *testing.T) {
	manifest := []registry.SkillDescriptor{
		{Name: "weather", Description: "reports current weather conditions", Type: registry.SkillRegular, EmbeddingsBoostFactor: 1.0},
	}
	d, _, provider := newTestDispatcher(t, manifest, `{"temp_f": 72}`)
	provider.chatResponse = `{"skill_id":"weather","parameters":{"city":"nyc"},"skill_intention":"checking the weather"}`
	provider.streamDeltas = []string{"it is ", "72 degrees"}

	sink := &captureSink{}
	p := d.NewParser(context.Background(), sink, ChatContext{})
	p.processCommand("what is the weather in nyc")

	text := sink.joinedText()
	if !strings.Contains(text, "checking the weather") {
		t.Fatalf("expected intention text in output, got %q", text)
	}
	if !strings.Contains(text, "it is 72 degrees") {
		t.Fatalf("expected streamed interpretation in output, got %q", text)
	}

	var sawStart, sawStop bool
	for _, e := range sink.events {
		if ls, ok := e.(events.LoadingSignal); ok {
			if ls.State == "start" {
				sawStart = true
			}
			if ls.State == "stop" {
				sawStop = true
			}
		}
	}
	if !sawStart || !sawStop {
		t.Fatalf("expected loading start+stop signals, got %v", sink.events)
	}
}

func TestProcessCommand_UISkillRendersAndHalts(t *testing.T) {
	manifest := []registry.SkillDescriptor{
		{Name: "weather", Description: "reports current weather conditions", Type: registry.SkillUI, UI: &registry.UIBinding{Component: "WeatherCard"}, EmbeddingsBoostFactor: 1.0},
	}
	d, _, provider := newTestDispatcher(t, manifest, `{"temp_f": 72}`)
	provider.chatResponse = `{"skill_id":"weather","parameters":{},"skill_intention":"showing weather"}`
	provider.streamDeltas = []string{"should never appear"}

	sink := &captureSink{}
	p := d.NewParser(context.Background(), sink, ChatContext{})
	p.processCommand("show me the weather")

	text := sink.joinedText()
	if strings.Contains(text, "should never appear") {
		t.Fatalf("expected no interpretation call for a ui skill, got %q", text)
	}

	var render *events.RenderNexus
	for _, e := range sink.events {
		if rn, ok := e.(events.RenderNexus); ok {
			rn := rn
			render = &rn
		}
	}
	if render == nil || render.ComponentPath != "WeatherCard" {
		t.Fatalf("expected a RenderNexus event, got %v", sink.events)
	}
}

func TestProcessCommand_NoMatchYieldsError(t *testing.T) {
	provider := &fakeProvider{embedDims: 4}
	m := matcher.New(provider, nil) // no skills registered at all
	reg := registry.New(config.RegistryConfig{MaxRetries: 1}, nil, nil, nil)
	tmpl, err := templates.New(nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	d := New(m, reg, provider, tmpl, 0.0, 5, 0)

	sink := &captureSink{}
	p := d.NewParser(context.Background(), sink, ChatContext{})
	p.processCommand("completely unrelated gibberish query")

	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one error event, got %v", sink.events)
	}
	if _, ok := sink.events[0].(events.ErrorSignal); !ok {
		t.Fatalf("expected ErrorSignal, got %#v", sink.events[0])
	}
}
