package conversation

import (
	"context"
	"fmt"

	"orakle/internal/llmadapter"
)

// DefaultSystemTemplateName matches config.ConversationConfig's own
// default, so a caller who doesn't override SystemTemplateName still
// gets a working template out of the box once DefaultSystemTemplate is
// registered with the Template Renderer at startup.
const DefaultSystemTemplateName = "system_base"

// DefaultSystemTemplate is the base system prompt, composed per §4.5
// step 3 with whichever optional grounding sections memory/summarization
// produced for this turn. cmd/orakled registers this with
// internal/templates.New at startup.
const DefaultSystemTemplate = `You are orakle, a helpful conversational assistant with access to a library of skills you can invoke when a user's request calls for one.
{{- if .ConversationSummary }}

Summary of the conversation so far:
{{ .ConversationSummary }}
{{- end }}
{{- if .ProfileSummary }}

What you know about this user:
{{ .ProfileSummary }}
{{- end }}
{{- if .RecentMemoriesSummary }}

Recently discussed:
{{ .RecentMemoriesSummary }}
{{- end }}
{{- if .RelevantMemories }}

Memories relevant to the current message:
{{- range .RelevantMemories }}
- {{ . }}
{{- end }}
{{- end }}`

// systemContext is everything composeSystemMessage assembled, returned
// so RunTurn can reuse the profile summary for the dispatch ChatContext
// instead of recomputing it.
type systemContext struct {
	Message        llmadapter.Message
	ProfileSummary string
}

func (m *Manager) composeSystemMessage(ctx context.Context, contextID, userText string, memEnabled bool, convSummary string) (systemContext, error) {
	tmplCtx := map[string]any{"ConversationSummary": convSummary}

	var profileSummary string
	if memEnabled && m.memory != nil {
		if p, err := m.memory.GenerateUserProfileSummary(ctx, contextID); err == nil && p != "" {
			profileSummary = p
			tmplCtx["ProfileSummary"] = p
		}
		if r, err := m.memory.GenerateRecentMemoriesSummary(ctx, contextID); err == nil && r != "" {
			tmplCtx["RecentMemoriesSummary"] = r
		}
		if scored, err := m.memory.GetRelevantMemories(ctx, contextID, userText, nil); err == nil && len(scored) > 0 {
			texts := make([]string, 0, len(scored))
			for _, s := range scored {
				texts = append(texts, s.Memory.Text)
			}
			tmplCtx["RelevantMemories"] = texts
		}
	}

	name := m.cfg.SystemTemplateName
	if name == "" {
		name = DefaultSystemTemplateName
	}
	content, err := m.templates.Render(name, tmplCtx)
	if err != nil {
		return systemContext{}, fmt.Errorf("render system template %q: %w", name, err)
	}

	return systemContext{
		Message:        llmadapter.Message{Role: llmadapter.RoleSystem, Content: content},
		ProfileSummary: profileSummary,
	}, nil
}
