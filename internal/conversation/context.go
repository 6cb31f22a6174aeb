package conversation

import (
	"orakle/internal/llmadapter"
	"orakle/internal/textstore"
)

// trimContext implements §4.5 step 4. It keeps the system message and
// the most recent user+assistant pair unconditionally, then walks older
// messages newest-to-oldest keeping each while it still fits the
// context window. Per the resolved Open Question (SPEC_FULL.md §4.5),
// only the single first message that doesn't fit is pushed into the
// summarization buffer; anything older than that is dropped from the
// kept set without being individually buffered.
func (m *Manager) trimContext(systemMsg llmadapter.Message, history []textstore.Message, userText string) ([]llmadapter.Message, []textstore.Message) {
	window := m.llm.ContextWindow()
	sysTokens := m.llm.TokenCount(llmadapter.RoleSystem, systemMsg.Content)

	all := make([]textstore.Message, len(history), len(history)+1)
	copy(all, history)
	all = append(all, textstore.Message{
		Role:    textstore.RoleUser,
		Content: userText,
		Tokens:  m.llm.TokenCount(llmadapter.RoleUser, userText),
	})

	total := sysTokens
	for _, msg := range all {
		total += msg.Tokens
	}
	if total <= window {
		return append([]llmadapter.Message{systemMsg}, toLLMMessages(all)...), nil
	}

	n := len(all)
	keepFromEnd := 1
	if n >= 2 {
		keepFromEnd = 2
	}
	unconditional := all[n-keepFromEnd:]

	runningTokens := sysTokens
	for _, msg := range unconditional {
		runningTokens += msg.Tokens
	}
	kept := append([]textstore.Message(nil), unconditional...)

	var trimmed []textstore.Message
	stopped := false
	for i := n - keepFromEnd - 1; i >= 0; i-- {
		if stopped {
			continue // strictly older messages are dropped, not individually buffered
		}
		msg := all[i]
		if runningTokens+msg.Tokens <= window {
			runningTokens += msg.Tokens
			kept = append([]textstore.Message{msg}, kept...)
			continue
		}
		trimmed = append(trimmed, msg)
		stopped = true
	}

	return append([]llmadapter.Message{systemMsg}, toLLMMessages(kept)...), trimmed
}
