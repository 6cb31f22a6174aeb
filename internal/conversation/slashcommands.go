package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"orakle/internal/events"
)

// handleSlashCommand implements §4.5 step 1 and the slash commands named
// in §6: /memory and /nomemory toggle persistent memory, /testdocview
// and /testnexus are reserved diagnostic commands that emit UI events
// directly without ever reaching the LLM. handled is false for any
// other input, meaning the normal turn pipeline should run.
func (m *Manager) handleSlashCommand(ctx context.Context, contextID, text string, out OutputWriter) (handled bool, err error) {
	trimmed := strings.TrimSpace(text)

	switch {
	case trimmed == "/memory":
		return true, m.setMemoryEnabled(ctx, contextID, true, out)
	case trimmed == "/nomemory":
		return true, m.setMemoryEnabled(ctx, contextID, false, out)
	case strings.HasPrefix(trimmed, "/testdocview "):
		return true, m.handleTestDocView(strings.TrimPrefix(trimmed, "/testdocview "), out)
	case strings.HasPrefix(trimmed, "/testnexus "):
		return true, m.handleTestNexus(strings.TrimPrefix(trimmed, "/testnexus "), trimmed, out)
	default:
		return false, nil
	}
}

func (m *Manager) setMemoryEnabled(ctx context.Context, contextID string, enabled bool, out OutputWriter) error {
	value := "true"
	msg := "Persistent memory enabled."
	if !enabled {
		value = "false"
		msg = "Persistent memory disabled."
	}
	if err := m.store.SetMetadata(ctx, contextID, "memory_enabled", value); err != nil {
		return fmt.Errorf("conversation: set memory_enabled: %w", err)
	}
	if err := out.Write(events.SetMemoryState{Enabled: enabled}); err != nil {
		return err
	}
	return out.Write(events.InfoMessage{Message: msg})
}

// handleTestDocView implements "/testdocview <format>,<content>" (§6):
// produce a setView signal followed by the document's full content,
// exactly the shape a fenced-code-block turn would have produced.
func (m *Manager) handleTestDocView(rest string, out OutputWriter) error {
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return out.Write(events.ErrorSignal{Message: "usage: /testdocview <format>,<content>"})
	}
	if err := out.Write(events.SetView{View: "document", Format: parts[0]}); err != nil {
		return err
	}
	return out.Write(events.ContentFull{Content: parts[1]})
}

// handleTestNexus implements "/testnexus <vendor>,<bundle>,<component> <json>".
func (m *Manager) handleTestNexus(rest, originalQuery string, out OutputWriter) error {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return out.Write(events.ErrorSignal{Message: "usage: /testnexus <vendor>,<bundle>,<component> <json>"})
	}
	path := strings.ReplaceAll(parts[0], ",", "/")
	var data any
	if err := json.Unmarshal([]byte(parts[1]), &data); err != nil {
		return out.Write(events.ErrorSignal{Message: fmt.Sprintf("invalid /testnexus json: %v", err)})
	}
	return out.Write(events.RenderNexus{ComponentPath: path, Data: data, Query: originalQuery})
}
