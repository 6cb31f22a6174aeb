// Package registry implements the Skill Registry Client (C1, §4.2):
// capabilities() discovery across a priority-ordered pool of skill servers
// and invoke(skill_id, args) dispatch, plus the ambient transport
// resilience, capability caching, and MCP discovery additions described in
// §4.2 of SPEC_FULL.md.
package registry

// Parameter describes one argument a skill accepts, per the Skill
// Descriptor data model (§3).
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// UIBinding describes the {component, vendor, bundle} triple carried by
// "ui"-typed skills, rendered client-side via a RenderNexus event (§6).
type UIBinding struct {
	Component string `json:"component"`
	Vendor    string `json:"vendor,omitempty"`
	Bundle    string `json:"bundle,omitempty"`
}

// SkillType distinguishes skills that return a value the model consumes
// ("regular") from skills that hand a pre-built UI component back to the
// client ("ui").
type SkillType string

const (
	SkillRegular SkillType = "regular"
	SkillUI      SkillType = "ui"
)

// SkillDescriptor is the manifest entry returned by capabilities(), exactly
// as §3's Skill Descriptor: {name, description, matcher_info, parameters,
// type, ui?, embeddings_boost_factor}.
type SkillDescriptor struct {
	Name                  string      `json:"name"`
	Description           string      `json:"description"`
	MatcherInfo           string      `json:"matcher_info,omitempty"`
	Parameters            []Parameter `json:"parameters,omitempty"`
	Type                  SkillType   `json:"type"`
	UI                    *UIBinding  `json:"ui,omitempty"`
	EmbeddingsBoostFactor float64     `json:"embeddings_boost_factor"`

	// ServerID records which configured server (or "mcp:<name>") the
	// descriptor was discovered through, so invoke() can route back to it
	// without re-running capabilities().
	ServerID string `json:"-"`
	// UsageCount feeds the matcher's (score, usage_count) tie-break (§4.1);
	// populated from server-reported stats when a manifest supplies them.
	UsageCount int `json:"usage_count,omitempty"`
}
