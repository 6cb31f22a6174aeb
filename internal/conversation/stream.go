package conversation

import (
	"context"
	"fmt"
	"strings"

	"orakle/internal/dispatch"
	"orakle/internal/events"
	"orakle/internal/llmadapter"
	"orakle/internal/reasoning"
)

// bufferItem is one piece of a Parser's output: either a text chunk or a
// structured event, recorded in arrival order.
type bufferItem struct {
	isText bool
	text   string
	event  events.Event
}

// bufferSink implements dispatch.Sink by recording everything instead of
// writing it anywhere, so a turn's full reconstructed text can be
// inspected for the guardrail marker (§4.3) before a single byte reaches
// the client — matching step 6's "buffer its output chunks" literally.
type bufferSink struct {
	items []bufferItem
}

func (b *bufferSink) Text(s string) {
	if s == "" {
		return
	}
	b.items = append(b.items, bufferItem{isText: true, text: s})
}

func (b *bufferSink) Event(e events.Event) {
	b.items = append(b.items, bufferItem{event: e})
}

func (b *bufferSink) fullText() string {
	var sb strings.Builder
	for _, it := range b.items {
		if it.isText {
			sb.WriteString(it.text)
		}
	}
	return sb.String()
}

// parserStreamHandler adapts a dispatch.Parser into an llmadapter.StreamHandler.
type parserStreamHandler struct {
	parser *dispatch.Parser
}

func (h parserStreamHandler) OnDelta(text string)                { h.parser.Feed(text) }
func (h parserStreamHandler) OnToolCall(tc llmadapter.ToolCall) {}

func (m *Manager) runAttempt(ctx context.Context, messages []llmadapter.Message, effort string, chatCtx dispatch.ChatContext) (*bufferSink, error) {
	sink := &bufferSink{}
	parser := m.dispatch.NewParser(ctx, sink, chatCtx)

	opts := llmadapter.ChatOptions{}
	if effort != "" {
		opts.ReasoningEffort = effort
	}

	err := m.llm.ChatStream(ctx, messages, nil, opts, parserStreamHandler{parser: parser})
	parser.Close()
	if err != nil {
		return sink, fmt.Errorf("llm stream: %w", err)
	}
	return sink, nil
}

// streamWithGuardrailRetry implements §4.5 step 6 and the guardrail
// retry rule of §4.3: buffer a full attempt, and if it contains the
// marker, retry with a corrective user turn appended, up to
// MaxGuardrailRetries times before surfacing an error.
func (m *Manager) streamWithGuardrailRetry(ctx context.Context, contextID string, messages []llmadapter.Message, effort string, chatCtx dispatch.ChatContext) (*bufferSink, error) {
	maxRetries := m.cfg.MaxGuardrailRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	msgs := messages

	for attempt := 0; attempt <= maxRetries; attempt++ {
		sink, err := m.runAttempt(ctx, msgs, effort, chatCtx)
		if err != nil {
			return nil, fmt.Errorf("conversation: %w", err)
		}
		if !strings.Contains(sink.fullText(), dispatch.GuardrailMarker) {
			return sink, nil
		}
		if attempt == maxRetries {
			return nil, fmt.Errorf("conversation: guardrail triggered after %d retries", attempt)
		}
		msgs = append(append([]llmadapter.Message(nil), msgs...), llmadapter.Message{
			Role:    llmadapter.RoleUser,
			Content: "Your previous response was blocked by a content guardrail. Revise your answer to comply with policy and try again.",
		})
	}
	return nil, fmt.Errorf("conversation: guardrail retry loop exited unexpectedly")
}

// flush replays a committed attempt's buffered items to out, running
// plain text through the document-block filter (§4.5 step 7) and,
// outside document blocks, through TTS sentence buffering (step 8) when
// TTS is attached. It returns the turn's full reconstructed text, with
// the guardrail marker stripped, for the end-of-turn message append.
func (m *Manager) flush(ctx context.Context, contextID string, sink *bufferSink, out OutputWriter) (string, error) {
	var doc DocBlockFilter
	var sentences *reasoning.SentenceBuffer
	if m.tts != nil {
		sentences = &reasoning.SentenceBuffer{}
	}

	var full strings.Builder
	for _, item := range sink.items {
		if !item.isText {
			if err := out.Write(item.event); err != nil {
				return "", err
			}
			continue
		}
		full.WriteString(item.text)
		clean := strings.ReplaceAll(item.text, dispatch.GuardrailMarker, "")
		for _, ev := range doc.Feed(clean) {
			if err := m.emitDocEvent(ctx, contextID, ev, sentences, out); err != nil {
				return "", err
			}
		}
	}
	for _, ev := range doc.Close() {
		if err := m.emitDocEvent(ctx, contextID, ev, sentences, out); err != nil {
			return "", err
		}
	}
	if sentences != nil {
		for _, s := range sentences.Flush() {
			if err := m.emitTTSSentence(ctx, contextID, s, out); err != nil {
				return "", err
			}
		}
	}

	return strings.ReplaceAll(full.String(), dispatch.GuardrailMarker, ""), nil
}

func (m *Manager) emitDocEvent(ctx context.Context, contextID string, ev DocEvent, sentences *reasoning.SentenceBuffer, out OutputWriter) error {
	switch ev.Kind {
	case DocOpen:
		return out.Write(events.SetView{View: "document", Format: ev.Format})
	case DocBody:
		return out.Write(events.ContentFull{Content: ev.Body})
	case DocText:
		if sentences != nil {
			for _, s := range sentences.Feed(ev.Text) {
				if err := m.emitTTSSentence(ctx, contextID, s, out); err != nil {
					return err
				}
			}
			return nil
		}
		return out.Write(events.MessageStream{Content: ev.Text})
	}
	return nil
}

func (m *Manager) emitTTSSentence(ctx context.Context, contextID, sentence string, out OutputWriter) error {
	clean := reasoning.StripTimestampPrefix(sentence)
	if clean == "" {
		return nil
	}
	url, format, duration, err := m.tts.Synthesize(ctx, contextID, clean)
	if err != nil {
		return out.Write(events.MessageStream{Content: clean})
	}
	d := duration
	return out.Write(events.MessageStream{
		Content: clean,
		Flags:   events.StreamFlags{Audio: true, Duration: &d},
		Audio:   &events.StreamAudio{URL: url, Format: format},
	})
}
