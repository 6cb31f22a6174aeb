package llmadapter

import (
	"context"
	"fmt"
	"net/http"

	"orakle/internal/config"
	anthropicllm "orakle/internal/llmadapter/anthropic"
	googlellm "orakle/internal/llmadapter/google"
	openaillm "orakle/internal/llmadapter/openai"
)

// Build selects a concrete Provider by cfg.Provider, the same switch
// manifold's internal/llm/providers/factory.go performs.
func Build(ctx context.Context, cfg config.Config, httpClient *http.Client) (Provider, error) {
	switch cfg.LLM.Provider {
	case "", "openai", "local":
		return openaillm.New(cfg.LLM, cfg.Embedding, httpClient), nil
	case "anthropic":
		return anthropicllm.New(cfg.LLM, cfg.Embedding, httpClient), nil
	case "google":
		return googlellm.New(ctx, cfg.LLM, cfg.Embedding, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
