// Package llmadapter is the LLM adapter required by §6: chat (streaming or
// not), token counting, context window size, reasoning support, and a
// normalized model identifier, implemented against three concrete SDKs
// selected by Build. Shape is a direct descendant of manifold's own
// internal/llm/provider.go Provider interface.
package llmadapter

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	Name string
	Args map[string]any
	ID   string
}

type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

type Message struct {
	Role      Role
	Content   string
	ToolID    string
	ToolCalls []ToolCall
}

// ChatOptions carries per-call hints. ReasoningEffort mirrors the field the
// teacher extracts out of an "extra params" map in openai/client.go
// (extractReasoningEffort); here it is a first-class typed option so every
// adapter shares one call shape instead of each parsing its own map.
type ChatOptions struct {
	ReasoningEffort string // "", "low", "medium", "high" — ignored if unsupported
}

// StreamHandler receives incremental output from ChatStream.
type StreamHandler interface {
	OnDelta(text string)
	OnToolCall(tc ToolCall)
}

// Provider is implemented once per backend (openai, anthropic, google).
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, opts ChatOptions) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, opts ChatOptions, h StreamHandler) error
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	TokenCount(role Role, text string) int
	ContextWindow() int
	SupportsReasoning() bool
	Model() string
}
