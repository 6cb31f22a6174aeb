package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"orakle/internal/config"
	"orakle/internal/orakleerr"
)

// InvocationError formats a non-2xx skill response the way §4.2/§7 require:
// the server's body is surfaced verbatim rather than swallowed.
type InvocationError struct {
	Server     string
	StatusCode int
	Body       string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("skill server %s returned %d: %s", e.Server, e.StatusCode, e.Body)
}

// Client is the engine's handle onto the pool of external capability
// providers (§2): a priority-ordered list of HTTP skill servers, optionally
// supplemented by MCP servers, fronted by a capability cache.
type Client struct {
	httpClient *http.Client
	servers    []config.SkillServer
	maxRetries int
	cache      *CacheLayer
	mcp        *MCPSource
}

// New builds a registry Client from configuration. httpClient is shared
// with the rest of the engine so otelhttp instrumentation applies uniformly.
func New(cfg config.RegistryConfig, httpClient *http.Client, cache *CacheLayer, mcp *MCPSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		httpClient: httpClient,
		servers:    cfg.Servers,
		maxRetries: maxRetries,
		cache:      cache,
		mcp:        mcp,
	}
}

// Capabilities fetches the first responding server's manifest in priority
// order, merging in any MCP-discovered skills ahead of the HTTP-only
// result, exactly as §4.2's "fetches ... until one responds" plus the MCP
// discovery addition.
func (c *Client) Capabilities(ctx context.Context) ([]SkillDescriptor, error) {
	var merged []SkillDescriptor

	if c.mcp != nil {
		mcpSkills, err := c.mcp.Capabilities(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("registry: mcp capability discovery failed")
		} else {
			merged = append(merged, mcpSkills...)
		}
	}

	for _, srv := range c.servers {
		if c.cache != nil {
			if cached, ok := c.cache.Get(srv.BaseURL); ok {
				return append(merged, cached...), nil
			}
		}

		skills, hash, err := c.fetchManifest(ctx, srv)
		if err != nil {
			log.Debug().Err(err).Str("server", srv.BaseURL).Msg("registry: capabilities fetch failed, trying next server")
			continue
		}
		for i := range skills {
			skills[i].ServerID = srv.BaseURL
		}
		if c.cache != nil {
			c.cache.Set(srv.BaseURL, hash, skills)
		}
		return append(merged, skills...), nil
	}

	if len(merged) > 0 {
		return merged, nil
	}
	return nil, orakleerr.Wrap(orakleerr.TransientNetwork, fmt.Errorf("no skill server responded"))
}

func (c *Client) fetchManifest(ctx context.Context, srv config.SkillServer) ([]SkillDescriptor, string, error) {
	op := func() ([]SkillDescriptor, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.BaseURL+"/capabilities", nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err // retryable: network failure
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, backoff.Permanent(&InvocationError{Server: srv.BaseURL, StatusCode: resp.StatusCode, Body: string(body)})
		}
		var skills []SkillDescriptor
		if err := json.Unmarshal(body, &skills); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode manifest from %s: %w", srv.BaseURL, err))
		}
		return skills, nil
	}

	skills, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries)),
	)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(mustMarshal(skills))
	return skills, hex.EncodeToString(sum[:]), nil
}

// Invoke POSTs args to <server>/run/<skill_id> and bounds the call with
// invokeTimeout (default 60s, §4.2). Skills discovered via MCP are routed
// through the MCP source's own call path instead of HTTP.
func (c *Client) Invoke(ctx context.Context, skill SkillDescriptor, args map[string]any, invokeTimeout time.Duration) (string, error) {
	if invokeTimeout <= 0 {
		invokeTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	if c.mcp != nil && isMCPServerID(skill.ServerID) {
		return c.mcp.Invoke(ctx, skill, args)
	}

	body, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal skill args: %w", err)
	}

	server := skill.ServerID
	if server == "" && len(c.servers) > 0 {
		server = c.servers[0].BaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/run/"+skill.Name, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", orakleerr.Wrap(orakleerr.TransientNetwork, fmt.Errorf("invoke skill %s on %s: %w", skill.Name, server, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", orakleerr.Wrap(orakleerr.SkillInvocationFailed, &InvocationError{Server: server, StatusCode: resp.StatusCode, Body: string(respBody)})
	}
	return string(respBody), nil
}

func isMCPServerID(serverID string) bool {
	return len(serverID) > 4 && serverID[:4] == "mcp:"
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
