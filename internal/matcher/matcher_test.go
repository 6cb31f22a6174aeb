package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"orakle/internal/config"
)

// fakeEmbedder returns whatever vector each test's vec function assigns to
// a text and counts Embed calls, enough to exercise ordering, threshold and
// caching behavior without a live embedding backend.
type fakeEmbedder struct {
	calls int
	vec   func(text string) []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func boostedVector(weight float32) []float32 {
	return []float32{weight, 1 - weight}
}

func TestBuildEmbeddingText_ExtractsBoostKeywordsAndDomainContext(t *testing.T) {
	enhanced, textToEmbed, boosts := buildEmbeddingText("skills/weather_lookup", "Look up **weather** for a city", "")
	require.Equal(t, []string{"weather"}, boosts)
	require.Contains(t, textToEmbed, "skills weather lookup skills weather lookup")
	require.Contains(t, textToEmbed, " weather weather weather weather weather weather ")
	require.NotContains(t, enhanced, "**")
	require.Contains(t, enhanced, "Look up weather for a city")
}

func TestMatch_FiltersBelowThresholdAndSortsByScoreThenUsage(t *testing.T) {
	embedder := &fakeEmbedder{vec: func(text string) []float32 {
		switch text {
		case "query":
			return []float32{1, 0}
		default:
			return boostedVector(0.9)
		}
	}}
	m := New(embedder, nil)
	require.NoError(t, m.Register(context.Background(), "a", "does a thing", "", 1.0))
	require.NoError(t, m.Register(context.Background(), "b", "does a thing too", "", 1.0))
	m.RecordUsage("b")
	m.RecordUsage("b")

	matches, err := m.Match(context.Background(), "query", 0.0, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "b", matches[0].SkillID) // same score, higher usage wins tie
	require.Equal(t, 2, matches[0].UsageCount)
}

func TestMatch_HonorsEmbeddingsBoostFactor(t *testing.T) {
	embedder := &fakeEmbedder{vec: func(text string) []float32 {
		if text == "query" {
			return []float32{1, 0}
		}
		return []float32{1, 0}
	}}
	m := New(embedder, nil)
	require.NoError(t, m.Register(context.Background(), "low", "thing", "", 0.5))
	require.NoError(t, m.Register(context.Background(), "high", "thing", "", 2.0))

	matches, err := m.Match(context.Background(), "query", 0.0, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "high", matches[0].SkillID)
	require.InDelta(t, 2.0, matches[0].Score, 1e-9)
	require.Equal(t, "low", matches[1].SkillID)
	require.InDelta(t, 0.5, matches[1].Score, 1e-9)
}

func TestMatch_BelowThresholdExcluded(t *testing.T) {
	embedder := &fakeEmbedder{vec: func(text string) []float32 {
		if text == "query" {
			return []float32{1, 0}
		}
		return []float32{0, 1} // orthogonal: cosine similarity 0
	}}
	m := New(embedder, nil)
	require.NoError(t, m.Register(context.Background(), "unrelated", "thing", "", 1.0))

	matches, err := m.Match(context.Background(), "query", 0.1, 10)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestEmbed_UsesCacheOnSecondCall(t *testing.T) {
	embedder := &fakeEmbedder{vec: func(text string) []float32 { return []float32{1, 0} }}
	cache := NewEmbeddingCache(0, config.RedisConfig{})
	m := New(embedder, cache)
	require.NoError(t, m.Register(context.Background(), "a", "thing", "", 1.0))
	require.NoError(t, m.Register(context.Background(), "a", "thing", "", 1.0))
	require.Equal(t, 1, embedder.calls)
}
