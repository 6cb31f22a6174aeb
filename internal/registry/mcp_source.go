package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"orakle/internal/version"
)

// MCPSource is a supplemental capability discovery source: each configured
// MCP server's tool listing is mapped into SkillDescriptors and merged into
// capabilities() ahead of the HTTP-only servers, per §4.2's "additional
// discovery source" note. Adapted from internal/mcpclient/mcpclient.go's
// session-management shape, generalized from "register into a tools.Registry"
// to "return SkillDescriptors".
type MCPSource struct {
	sessions map[string]*mcppkg.ClientSession
	tools    map[string]map[string]*mcppkg.Tool // server -> tool name -> tool
}

// NewMCPSource connects to every URL in serverURLs via the MCP Streamable
// HTTP transport. A server that fails to connect is skipped, not fatal,
// matching RegisterFromConfig's "don't fail entire setup" policy.
func NewMCPSource(ctx context.Context, serverURLs []string) *MCPSource {
	src := &MCPSource{
		sessions: make(map[string]*mcppkg.ClientSession),
		tools:    make(map[string]map[string]*mcppkg.Tool),
	}
	for _, url := range serverURLs {
		if strings.TrimSpace(url) == "" {
			continue
		}
		client := mcppkg.NewClient(&mcppkg.Implementation{Name: "orakle", Version: version.Version}, nil)
		transport := &mcppkg.StreamableClientTransport{Endpoint: url}
		session, err := client.Connect(ctx, transport, nil)
		if err != nil {
			continue
		}
		src.sessions[url] = session
		toolsByName := make(map[string]*mcppkg.Tool)
		for tool, err := range session.Tools(ctx, nil) {
			if err != nil {
				break
			}
			toolsByName[tool.Name] = tool
		}
		src.tools[url] = toolsByName
	}
	return src
}

// Capabilities lists every tool across every connected MCP server as a
// SkillDescriptor of type "regular", with parameters derived from the
// tool's JSON schema.
func (s *MCPSource) Capabilities(ctx context.Context) ([]SkillDescriptor, error) {
	var out []SkillDescriptor
	for server, toolsByName := range s.tools {
		for name, tool := range toolsByName {
			out = append(out, SkillDescriptor{
				Name:                  name,
				Description:           tool.Description,
				Type:                  SkillRegular,
				Parameters:            parametersFromSchema(tool.InputSchema),
				EmbeddingsBoostFactor: 1.0,
				ServerID:              "mcp:" + server,
			})
		}
	}
	return out, nil
}

// Invoke calls the named tool on the MCP server the descriptor was
// discovered through.
func (s *MCPSource) Invoke(ctx context.Context, skill SkillDescriptor, args map[string]any) (string, error) {
	server := strings.TrimPrefix(skill.ServerID, "mcp:")
	session, ok := s.sessions[server]
	if !ok {
		return "", fmt.Errorf("mcp server %q not connected", server)
	}
	res, err := session.CallTool(ctx, &mcppkg.CallToolParams{Name: skill.Name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcp invoke %s: %w", skill.Name, err)
	}
	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcppkg.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n"), nil
	}
	b, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close tears down every MCP session.
func (s *MCPSource) Close() {
	for _, sess := range s.sessions {
		_ = sess.Close()
	}
}

// parametersFromSchema flattens an MCP tool's JSON input schema into the
// Skill Descriptor's flat Parameter list (§3), best-effort: only top-level
// object properties are represented, matching what a manifest-based skill
// server would normally describe anyway.
func parametersFromSchema(schema any) []Parameter {
	if schema == nil {
		return nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var decoded struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil
	}
	required := make(map[string]bool, len(decoded.Required))
	for _, r := range decoded.Required {
		required[r] = true
	}
	params := make([]Parameter, 0, len(decoded.Properties))
	for name, prop := range decoded.Properties {
		p := Parameter{Name: name, Required: required[name]}
		if t, ok := prop["type"].(string); ok {
			p.Type = t
		}
		if d, ok := prop["description"].(string); ok {
			p.Description = d
		}
		if def, ok := prop["default"]; ok {
			p.Default = def
		}
		params = append(params, p)
	}
	return params
}
