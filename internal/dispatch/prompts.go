package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"orakle/internal/matcher"
	"orakle/internal/registry"
)

// buildSelectionPrompt renders the skill-selection prompt (step 2): the
// query plus every candidate skill's name, description, and parameters.
func buildSelectionPrompt(query string, matches []matcher.Match, descriptors map[string]registry.SkillDescriptor) string {
	var b strings.Builder
	b.WriteString("A user made the following request. Choose the single best skill to satisfy it ")
	b.WriteString("and return ONLY a JSON object shaped as ")
	b.WriteString(`{"skill_id": "...", "parameters": {...}, "skill_intention": "...", "frustration_level": 0.0, "frustration_reason": "..."}`)
	b.WriteString(".\n\nRequest: ")
	b.WriteString(query)
	b.WriteString("\n\nCandidate skills:\n")
	for _, m := range matches {
		sd, ok := descriptors[m.SkillID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", sd.Name, sd.Description)
		for _, p := range sd.Parameters {
			req := ""
			if p.Required {
				req = ", required"
			}
			fmt.Fprintf(&b, "    param %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return b.String()
}

// buildInterpretationPrompt renders the command-interpretation prompt
// (step 7): the skill's JSON/text result, the original query, and
// whatever chat grounding is available.
func buildInterpretationPrompt(query, result string, chatCtx ChatContext) string {
	var b strings.Builder
	b.WriteString("A skill was invoked on behalf of the user and returned a result. ")
	b.WriteString("Explain the result to the user in natural language, in context of their original request.\n\n")
	fmt.Fprintf(&b, "Original request: %s\n\nSkill result:\n%s\n", query, result)

	if chatCtx.ProfileSummary != "" {
		fmt.Fprintf(&b, "\nUser profile:\n%s\n", chatCtx.ProfileSummary)
	}
	if chatCtx.ConversationSummary != "" {
		fmt.Fprintf(&b, "\nConversation so far:\n%s\n", chatCtx.ConversationSummary)
	}
	if len(chatCtx.RecentMessages) > 0 {
		b.WriteString("\nRecent turns:\n")
		for _, m := range chatCtx.RecentMessages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}

// parseSelectionResult extracts the JSON object the selection call
// returned, tolerating conversational text the model may have wrapped
// around it (the same defensive trimming internal/memory's assimilation
// parser uses for the same class of model).
func parseSelectionResult(raw string) (selectionResult, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return selectionResult{}, fmt.Errorf("no JSON object found in selection response")
	}
	var sel selectionResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &sel); err != nil {
		return selectionResult{}, fmt.Errorf("decode selection json: %w", err)
	}
	if sel.SkillID == "" {
		return selectionResult{}, fmt.Errorf("selection response missing skill_id")
	}
	return sel, nil
}
