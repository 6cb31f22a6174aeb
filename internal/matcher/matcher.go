// Package matcher implements the Semantic Matcher (C2, §4.1): embedding
// registration with domain-context and boost-keyword weighting, cosine
// similarity matching above a threshold, sorted by (score, usage_count).
// Grounded on original_source/ainara/framework/matcher/transformers.py,
// which is the authoritative source for the text-construction and scoring
// rules — §4.1's prose is a faithful summary of that file.
package matcher

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Embedder is the narrow interface the matcher needs from an LLM/embedding
// provider, keeping this package decoupled from any specific SDK the way
// the teacher splits internal/embedding from internal/embeddings for
// separate backends.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type registeredSkill struct {
	description           string // enhanced description, domain context + boost text + cleaned description
	matcherInfo           string
	embedding             []float32
	embeddingsBoostFactor float64
}

// Match is one scored result from Match.
type Match struct {
	SkillID     string
	Score       float64
	UsageCount  int
	Description string
}

var boostPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)

// Matcher holds the in-memory skill registry and usage counters described
// by §4.1. It is safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	skills   map[string]registeredSkill
	usage    map[string]int
	embedder Embedder
	cache    *EmbeddingCache
}

// New builds a Matcher backed by embedder for embedding calls, with an
// optional cache (nil disables caching, though §4.1 requires caching in
// production use).
func New(embedder Embedder, cache *EmbeddingCache) *Matcher {
	return &Matcher{
		skills:   make(map[string]registeredSkill),
		usage:    make(map[string]int),
		embedder: embedder,
		cache:    cache,
	}
}

// domainContext derives the "path-derived domain context" from a skill id
// shaped like a module path (slashes/underscores become spaces), repeated
// twice for embedding weight, exactly as transformers.py's register_skill.
func domainContext(skillID string) string {
	parts := strings.FieldsFunc(skillID, func(r rune) bool { return r == '/' || r == '_' })
	joined := strings.Join(parts, " ")
	return strings.Repeat(joined+" ", 2)
}

// buildEmbeddingText extracts **boost** keywords (repeated six times each),
// strips the markup from description, and concatenates domain context,
// boost text, cleaned description, and matcherInfo — the exact text the
// embedding is computed over.
func buildEmbeddingText(skillID, description, matcherInfo string) (enhancedDescription, textToEmbed string, boostKeywords []string) {
	domain := domainContext(skillID)

	for _, m := range boostPattern.FindAllStringSubmatch(description, -1) {
		boostKeywords = append(boostKeywords, m[1])
	}
	var boostText string
	if len(boostKeywords) > 0 {
		var b strings.Builder
		for _, kw := range boostKeywords {
			b.WriteString(strings.Repeat(" "+kw, 6))
		}
		boostText = b.String() + " "
	}
	cleanDescription := boostPattern.ReplaceAllString(description, "$1")

	enhancedDescription = fmt.Sprintf("%s: %s%s", domain, boostText, cleanDescription)
	textToEmbed = fmt.Sprintf("%s %s %s", domain, boostText, cleanDescription)

	if info := strings.TrimSpace(strings.ReplaceAll(matcherInfo, "\n", " ")); info != "" {
		textToEmbed += " " + info
	}
	return enhancedDescription, textToEmbed, boostKeywords
}

// Register embeds and stores a skill under skillID. description may
// contain **boost keyword** markup; matcherInfo and embeddingsBoostFactor
// come from the Skill Descriptor (§3). embeddingsBoostFactor of 0 is
// treated as 1.0 (no boost/penalty).
func (m *Matcher) Register(ctx context.Context, skillID, description, matcherInfo string, embeddingsBoostFactor float64) error {
	if embeddingsBoostFactor == 0 {
		embeddingsBoostFactor = 1.0
	}
	enhanced, textToEmbed, _ := buildEmbeddingText(skillID, description, matcherInfo)

	embedding, err := m.embed(ctx, textToEmbed)
	if err != nil {
		return fmt.Errorf("embed skill %s: %w", skillID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills[skillID] = registeredSkill{
		description:           enhanced,
		matcherInfo:           matcherInfo,
		embedding:             embedding,
		embeddingsBoostFactor: embeddingsBoostFactor,
	}
	if _, ok := m.usage[skillID]; !ok {
		m.usage[skillID] = 0
	}
	return nil
}

// Unregister removes a skill, e.g. when capabilities() stops listing it.
func (m *Matcher) Unregister(skillID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.skills, skillID)
	delete(m.usage, skillID)
}

func (m *Matcher) embed(ctx context.Context, text string) ([]float32, error) {
	if m.cache != nil {
		if v, ok := m.cache.Get(text); ok {
			return v, nil
		}
	}
	vecs, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors for text")
	}
	if m.cache != nil {
		m.cache.Set(text, vecs[0])
	}
	return vecs[0], nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Match embeds query once, scores every registered skill by cosine
// similarity times its embeddings_boost_factor, keeps scores >= threshold,
// and returns the top k sorted by (score, usage_count) descending.
func (m *Matcher) Match(ctx context.Context, query string, threshold float64, topK int) ([]Match, error) {
	queryEmbedding, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.skills))
	for skillID, skill := range m.skills {
		score := cosineSimilarity(queryEmbedding, skill.embedding) * skill.embeddingsBoostFactor
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			SkillID:     skillID,
			Score:       score,
			UsageCount:  m.usage[skillID],
			Description: skill.description,
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].UsageCount > matches[j].UsageCount
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// RecordUsage increments skillID's usage counter, feeding the tie-break on
// the next Match call. A no-op for a skill that was never registered.
func (m *Matcher) RecordUsage(skillID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.skills[skillID]; ok {
		m.usage[skillID]++
	}
}
