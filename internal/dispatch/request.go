package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"orakle/internal/events"
	"orakle/internal/llmadapter"
	"orakle/internal/matcher"
	"orakle/internal/registry"
)

// selectionResult is the JSON object the selection LLM call (step 3) must
// return, exactly as §4.3 names its fields.
type selectionResult struct {
	SkillID           string         `json:"skill_id"`
	Parameters        map[string]any `json:"parameters"`
	SkillIntention    string         `json:"skill_intention"`
	FrustrationLevel  float64        `json:"frustration_level"`
	FrustrationReason string         `json:"frustration_reason"`
}

// processCommand runs request processing steps (1)-(7) over the captured
// command content (the query text between the sentinels), writing
// everything it yields to p.sink.
func (p *Parser) processCommand(query string) {
	query = strings.TrimSpace(query)
	d := p.d

	// (1) semantic match.
	matches, err := d.matcher.Match(p.ctx, query, d.threshold, d.topK)
	if err != nil {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("skill matching failed: %v", err)})
		return
	}
	if len(matches) == 0 {
		p.sink.Event(events.ErrorSignal{Message: "no matching skill found for this request"})
		return
	}

	descriptors, err := d.lookupDescriptors(p.ctx, matches)
	if err != nil {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("skill lookup failed: %v", err)})
		return
	}

	// (2) selection prompt.
	selectionPrompt := buildSelectionPrompt(query, matches, descriptors)

	// (3) selection call, non-streaming.
	selMsg, err := d.llm.Chat(p.ctx, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: selectionPrompt}}, nil, llmadapter.ChatOptions{})
	if err != nil {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("skill selection failed: %v", err)})
		return
	}
	sel, err := parseSelectionResult(selMsg.Content)
	if err != nil {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("could not parse skill selection: %v", err)})
		return
	}

	descriptor, ok := descriptors[sel.SkillID]
	if !ok {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("selected unknown skill %q", sel.SkillID)})
		return
	}

	// (4) intention + loading signal.
	if sel.SkillIntention != "" {
		p.sink.Text(sel.SkillIntention)
	}
	log.Debug().Str("skill", sel.SkillID).Float64("frustration_level", sel.FrustrationLevel).
		Str("frustration_reason", sel.FrustrationReason).Msg("dispatch: skill selected")
	p.sink.Event(events.LoadingSignal{State: "start", Type: "skill", SkillID: sel.SkillID})
	defer p.sink.Event(events.LoadingSignal{State: "stop", Type: "skill", SkillID: sel.SkillID})

	// (5) invoke.
	result, err := d.registry.Invoke(p.ctx, descriptor, sel.Parameters, d.invokeTimeout)
	if err != nil {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("skill %q failed: %v", sel.SkillID, err)})
		return
	}
	d.matcher.RecordUsage(sel.SkillID)

	// (6) UI/nexus skills render a component and stop; no interpretation.
	if descriptor.Type == registry.SkillUI {
		var data any = result
		var parsed any
		if json.Unmarshal([]byte(result), &parsed) == nil {
			data = parsed
		}
		binding := descriptor.UI
		component := ""
		if binding != nil {
			component = binding.Component
		}
		p.sink.Event(events.RenderNexus{ComponentPath: component, Data: data, Query: query})
		return
	}

	// (7) command-interpretation prompt, streamed, with its own think
	// filter since the interpretation LLM call may itself think.
	interpPrompt := buildInterpretationPrompt(query, result, p.chatCtx)
	interpThink := &ThinkFilter{sink: p.sink}
	handler := &streamForwarder{sink: p.sink, think: interpThink}
	err = d.llm.ChatStream(p.ctx, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: interpPrompt}}, nil, llmadapter.ChatOptions{}, handler)
	interpThink.Close()
	if err != nil {
		p.sink.Event(events.ErrorSignal{Message: fmt.Sprintf("interpretation failed: %v", err)})
	}
}

// streamForwarder adapts ChatStream's delta callback into the sink,
// running interpretation output through its own think filter (§4.3:
// "stripping any further <think> blocks").
type streamForwarder struct {
	sink  Sink
	think *ThinkFilter
}

func (h *streamForwarder) OnDelta(text string) {
	clean := h.think.Feed(text)
	if clean != "" {
		h.sink.Text(clean)
	}
}

func (h *streamForwarder) OnToolCall(tc llmadapter.ToolCall) {}

// lookupDescriptors resolves full manifest entries for the matched skill
// ids, needed for parameter descriptions and invocation routing. A fresh
// call here is cheap: Capabilities is backed by registry's own two-tier
// cache, so this rarely hits the network.
func (d *Dispatcher) lookupDescriptors(ctx context.Context, matches []matcher.Match) (map[string]registry.SkillDescriptor, error) {
	all, err := d.registry.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]registry.SkillDescriptor, len(all))
	for _, sd := range all {
		byName[sd.Name] = sd
	}
	wanted := make(map[string]registry.SkillDescriptor, len(matches))
	for _, m := range matches {
		if sd, ok := byName[m.SkillID]; ok {
			wanted[m.SkillID] = sd
		}
	}
	return wanted, nil
}
