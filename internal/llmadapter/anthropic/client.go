// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to
// llmadapter.Provider, grounded on manifold's internal/llm/anthropic/client.go
// construction pattern (API key + base URL + injected http.Client).
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"orakle/internal/config"
	"orakle/internal/llmadapter"
)

const defaultMaxTokens int64 = 4096

type Client struct {
	llmadapter.Base
	sdk sdk.Client
}

func New(cfg config.LLMProviderConfig, embedCfg config.EmbeddingConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(sdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		Base: llmadapter.Base{
			ModelName:      model,
			ContextWin:     cfg.ContextWindow,
			SupportsReason: cfg.SupportsReason,
			EmbedCfg:       embedCfg,
		},
		sdk: sdk.NewClient(opts...),
	}
}

func splitSystem(msgs []llmadapter.Message) (system string, rest []llmadapter.Message) {
	for _, m := range msgs {
		if m.Role == llmadapter.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toSDKMessages(msgs []llmadapter.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == llmadapter.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}

func (c *Client) newParams(msgs []llmadapter.Message) sdk.MessageNewParams {
	system, rest := splitSystem(msgs)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.ModelName),
		MaxTokens: defaultMaxTokens,
		Messages:  toSDKMessages(rest),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	return params
}

func (c *Client) Chat(ctx context.Context, msgs []llmadapter.Message, _ []llmadapter.ToolSchema, _ llmadapter.ChatOptions) (llmadapter.Message, error) {
	resp, err := c.sdk.Messages.New(ctx, c.newParams(msgs))
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("anthropic chat: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return llmadapter.Message{Role: llmadapter.RoleAssistant, Content: text.String()}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llmadapter.Message, _ []llmadapter.ToolSchema, _ llmadapter.ChatOptions, h llmadapter.StreamHandler) error {
	stream := c.sdk.Messages.NewStreaming(ctx, c.newParams(msgs))
	defer stream.Close()
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if delta.Delta.Text != "" {
				h.OnDelta(delta.Delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic chat stream: %w", err)
	}
	return nil
}
