// Package openai adapts github.com/openai/openai-go/v2 to llmadapter.Provider.
// Construction mirrors manifold's internal/llm/openai/client.go: an SDK
// client built from an API key, base URL, and injected *http.Client.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"orakle/internal/config"
	"orakle/internal/llmadapter"
)

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
		model = sdk.ChatModelGPT4o
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

func toSDKMessages(msgs []llmadapter.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llmadapter.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case llmadapter.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		case llmadapter.RoleTool:
			out = append(out, sdk.ToolMessage(m.Content, m.ToolID))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

// extractReasoningEffort maps the generic ChatOptions hint onto the SDK's
// typed enum, the same translation manifold's own extractReasoningEffort
// performs out of a map[string]any "extra params" bag.
func extractReasoningEffort(opts llmadapter.ChatOptions) (shared.ReasoningEffort, bool) {
	switch strings.ToLower(strings.TrimSpace(opts.ReasoningEffort)) {
	case "low":
		return shared.ReasoningEffortLow, true
	case "medium":
		return shared.ReasoningEffortMedium, true
	case "high":
		return shared.ReasoningEffortHigh, true
	default:
		return "", false
	}
}

func (c *Client) newParams(msgs []llmadapter.Message, opts llmadapter.ChatOptions) sdk.ChatCompletionNewParams {
	params := sdk.ChatCompletionNewParams{
		Model:    c.ModelName,
		Messages: toSDKMessages(msgs),
	}
	if c.SupportsReason {
		if effort, ok := extractReasoningEffort(opts); ok {
			params.ReasoningEffort = effort
		}
	}
	return params
}

func (c *Client) Chat(ctx context.Context, msgs []llmadapter.Message, _ []llmadapter.ToolSchema, opts llmadapter.ChatOptions) (llmadapter.Message, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, c.newParams(msgs, opts))
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llmadapter.Message{}, fmt.Errorf("openai chat: empty choices")
	}
	return llmadapter.Message{Role: llmadapter.RoleAssistant, Content: resp.Choices[0].Message.Content}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llmadapter.Message, _ []llmadapter.ToolSchema, opts llmadapter.ChatOptions, h llmadapter.StreamHandler) error {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, c.newParams(msgs, opts))
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			h.OnDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai chat stream: %w", err)
	}
	return nil
}
