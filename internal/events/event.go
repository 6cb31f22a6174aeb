// Package events implements the NDJSON event stream (§6): a closed set of
// tagged event types, each with its own payload shape, serialized as
// {"type":...,"event":...,"content":...} only at the encoding boundary.
package events

import "encoding/json"

// Event is implemented by every concrete event type below. The marker
// method keeps the set closed to this package, matching the "tagged
// events, not duck-typed dicts" design note.
type Event interface {
	eventType() string
	eventName() string
	eventContent() any
}

type envelope struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Content any    `json:"content,omitempty"`
}

// Marshal renders any Event into its wire envelope.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:    e.eventType(),
		Event:   e.eventName(),
		Content: e.eventContent(),
	})
}

// --- signal/loading ---

type LoadingSignal struct {
	State     string  `json:"state"` // "start" | "stop"
	Reasoning float64 `json:"reasoning,omitempty"`
	Type      string  `json:"type,omitempty"` // "skill"
	SkillID   string  `json:"skill_id,omitempty"`
}

func (LoadingSignal) eventType() string { return "signal" }
func (LoadingSignal) eventName() string { return "loading" }
func (e LoadingSignal) eventContent() any {
	return struct {
		State     string  `json:"state"`
		Reasoning float64 `json:"reasoning,omitempty"`
		Type      string  `json:"type,omitempty"`
		SkillID   string  `json:"skill_id,omitempty"`
	}{e.State, e.Reasoning, e.Type, e.SkillID}
}

// --- signal/thinking ---

type ThinkingSignal struct {
	State string `json:"state"` // "start" | "stop"
}

func (ThinkingSignal) eventType() string   { return "signal" }
func (ThinkingSignal) eventName() string   { return "thinking" }
func (e ThinkingSignal) eventContent() any { return struct {
	State string `json:"state"`
}{e.State} }

// --- signal/error ---

type ErrorSignal struct {
	Message string `json:"message"`
}

func (ErrorSignal) eventType() string   { return "signal" }
func (ErrorSignal) eventName() string   { return "error" }
func (e ErrorSignal) eventContent() any { return struct {
	Message string `json:"message"`
}{e.Message} }

// --- signal/infoMessage ---

type InfoMessage struct {
	Message string `json:"message"`
}

func (InfoMessage) eventType() string   { return "signal" }
func (InfoMessage) eventName() string   { return "infoMessage" }
func (e InfoMessage) eventContent() any { return struct {
	Message string `json:"message"`
}{e.Message} }

// --- signal/completed ---

type Completed struct{}

func (Completed) eventType() string    { return "signal" }
func (Completed) eventName() string    { return "completed" }
func (Completed) eventContent() any    { return nil }

// --- message/stream ---

type StreamFlags struct {
	Command  bool     `json:"command"`
	Audio    bool     `json:"audio"`
	Duration *float64 `json:"duration,omitempty"`
	Skill    *bool    `json:"skill,omitempty"`
}

type StreamAudio struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type MessageStream struct {
	Content string       `json:"content"`
	Flags   StreamFlags  `json:"flags"`
	Audio   *StreamAudio `json:"audio,omitempty"`
}

func (MessageStream) eventType() string { return "message" }
func (MessageStream) eventName() string { return "stream" }
func (e MessageStream) eventContent() any {
	return struct {
		Content string       `json:"content"`
		Flags   StreamFlags  `json:"flags"`
		Audio   *StreamAudio `json:"audio,omitempty"`
	}{e.Content, e.Flags, e.Audio}
}

// --- ui/setView ---

type SetView struct {
	View   string `json:"view"` // "document"
	Format string `json:"format"`
}

func (SetView) eventType() string   { return "ui" }
func (SetView) eventName() string   { return "setView" }
func (e SetView) eventContent() any { return struct {
	View   string `json:"view"`
	Format string `json:"format"`
}{e.View, e.Format} }

// --- ui/setMemoryState ---

type SetMemoryState struct {
	Enabled bool `json:"enabled"`
}

func (SetMemoryState) eventType() string   { return "ui" }
func (SetMemoryState) eventName() string   { return "setMemoryState" }
func (e SetMemoryState) eventContent() any { return struct {
	Enabled bool `json:"enabled"`
}{e.Enabled} }

// --- ui/renderNexus ---

type RenderNexus struct {
	ComponentPath string `json:"component_path"`
	Data          any    `json:"data"`
	Query         string `json:"query"`
}

func (RenderNexus) eventType() string { return "ui" }
func (RenderNexus) eventName() string { return "renderNexus" }
func (e RenderNexus) eventContent() any {
	return struct {
		ComponentPath string `json:"component_path"`
		Data          any    `json:"data"`
		Query         string `json:"query"`
	}{e.ComponentPath, e.Data, e.Query}
}

// --- content/full ---

type ContentFull struct {
	Content string `json:"content"`
}

func (ContentFull) eventType() string   { return "content" }
func (ContentFull) eventName() string   { return "full" }
func (e ContentFull) eventContent() any { return struct {
	Content string `json:"content"`
}{e.Content} }
