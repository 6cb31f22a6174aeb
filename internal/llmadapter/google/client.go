// Package google adapts google.golang.org/genai to llmadapter.Provider,
// grounded on manifold's internal/llm/google/client.go construction
// pattern (genai.NewClient with APIKey/HTTPClient/HTTPOptions).
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"orakle/internal/config"
	"orakle/internal/llmadapter"
)

type Client struct {
	llmadapter.Base
	client *genai.Client
}

func New(ctx context.Context, cfg config.LLMProviderConfig, embedCfg config.EmbeddingConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		httpOpts.BaseURL = strings.TrimSuffix(baseURL, "/") + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{
		Base: llmadapter.Base{
			ModelName:      model,
			ContextWin:     cfg.ContextWindow,
			SupportsReason: cfg.SupportsReason,
			EmbedCfg:       embedCfg,
		},
		client: client,
	}, nil
}

func toContents(msgs []llmadapter.Message) (system string, contents []*genai.Content) {
	for _, m := range msgs {
		if m.Role == llmadapter.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		role := "user"
		if m.Role == llmadapter.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return system, contents
}

func (c *Client) genConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return cfg
}

func (c *Client) Chat(ctx context.Context, msgs []llmadapter.Message, _ []llmadapter.ToolSchema, _ llmadapter.ChatOptions) (llmadapter.Message, error) {
	system, contents := toContents(msgs)
	resp, err := c.client.Models.GenerateContent(ctx, c.ModelName, contents, c.genConfig(system))
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("google chat: %w", err)
	}
	return llmadapter.Message{Role: llmadapter.RoleAssistant, Content: resp.Text()}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llmadapter.Message, _ []llmadapter.ToolSchema, _ llmadapter.ChatOptions, h llmadapter.StreamHandler) error {
	system, contents := toContents(msgs)
	for chunk, err := range c.client.Models.GenerateContentStream(ctx, c.ModelName, contents, c.genConfig(system)) {
		if err != nil {
			return fmt.Errorf("google chat stream: %w", err)
		}
		if text := chunk.Text(); text != "" {
			h.OnDelta(text)
		}
	}
	return nil
}
