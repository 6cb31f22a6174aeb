package llmadapter

import (
	"context"
	"unicode/utf8"

	"orakle/internal/config"
	"orakle/internal/embedding"
)

// Base implements the concern every adapter shares: a simple rune-count
// token estimate (no provider overrides it with an SDK tokenizer), the
// configured context window/reasoning flag, and
// embeddings via the shared HTTP embeddings endpoint (internal/embedding),
// since none of the three chat SDKs are assumed to be the embeddings
// backend the deployment actually points at. Each provider Client embeds
// this rather than reimplementing the same five methods three times.
type Base struct {
	ModelName      string
	ContextWin     int
	SupportsReason bool
	EmbedCfg       config.EmbeddingConfig
}

func (b *Base) ContextWindow() int      { return b.ContextWin }
func (b *Base) SupportsReasoning() bool { return b.SupportsReason }
func (b *Base) Model() string           { return b.ModelName }

func (b *Base) TokenCount(_ Role, text string) int {
	// Crude estimate (~4 runes/token) used only for trimming decisions;
	// every provider uses this estimate as is.
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return n/4 + 1
}

func (b *Base) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.EmbedText(ctx, b.EmbedCfg, texts)
}
