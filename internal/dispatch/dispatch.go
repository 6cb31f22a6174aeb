// Package dispatch implements the Dispatch Middleware (C8, §4.3): a stream
// filter sitting between the LLM's raw output and the Conversation Manager,
// recognizing embedded skill-invocation commands and replacing them with
// the skill's rendered result. It consumes chunks as they arrive from
// internal/llmadapter's streaming call and yields plain text plus
// structured internal/events to a Sink, so nothing downstream ever sees a
// raw `<<<ORAKLE ... ORAKLE` block.
package dispatch

import (
	"context"
	"time"

	"orakle/internal/events"
	"orakle/internal/llmadapter"
	"orakle/internal/matcher"
	"orakle/internal/registry"
	"orakle/internal/templates"
)

// GuardrailMarker is the literal token a command-interpretation response
// may contain to signal that a guardrail fired. Detection and turn-retry
// is the Conversation Manager's job (§4.3's "downstream" language); this
// package only needs to agree on the exact string.
const GuardrailMarker = "[AINARA GUARDRAIL]"

// Sink receives the output of a Parser: ordinary text chunks interleaved
// with structured protocol events (loading signals, errors, UI renders).
// Conversation Manager implementations adapt this into the NDJSON stream
// (§6) or into TTS/document-block processing as needed.
type Sink interface {
	Text(s string)
	Event(e events.Event)
}

// SinkFunc adapts two plain functions into a Sink, the common case for
// tests and for a Conversation Manager that just forwards to one channel.
type SinkFunc struct {
	TextFn  func(string)
	EventFn func(events.Event)
}

func (f SinkFunc) Text(s string)        { f.TextFn(s) }
func (f SinkFunc) Event(e events.Event) { f.EventFn(e) }

// ChatContext carries the optional conversational grounding the
// command-interpretation prompt (step 7) may include: profile summary,
// conversation summary, and the last ~4 non-system messages. Nil/empty
// fields are simply omitted from the rendered prompt.
type ChatContext struct {
	ProfileSummary      string
	ConversationSummary string
	RecentMessages      []llmadapter.Message
}

// Dispatcher holds everything request processing (steps 1-7) needs:
// Semantic Matcher for skill selection, Skill Registry for manifest lookup
// and invocation, the LLM adapter for the two non-streaming/streaming
// calls, and the Template Renderer for the selection and interpretation
// prompts.
type Dispatcher struct {
	matcher       *matcher.Matcher
	registry      *registry.Client
	llm           llmadapter.Provider
	templates     *templates.Renderer
	threshold     float64
	topK          int
	invokeTimeout time.Duration
}

func New(m *matcher.Matcher, r *registry.Client, llm llmadapter.Provider, tmpl *templates.Renderer, threshold float64, topK int, invokeTimeout time.Duration) *Dispatcher {
	return &Dispatcher{matcher: m, registry: r, llm: llm, templates: tmpl, threshold: threshold, topK: topK, invokeTimeout: invokeTimeout}
}

// NewParser returns a fresh stream parser bound to this Dispatcher,
// sink, and per-turn chat context. One Parser is used per LLM response.
func (d *Dispatcher) NewParser(ctx context.Context, sink Sink, chatCtx ChatContext) *Parser {
	return &Parser{
		ctx:       ctx,
		d:         d,
		sink:      sink,
		chatCtx:   chatCtx,
		think:     &ThinkFilter{sink: sink},
		state:     stateText,
	}
}
