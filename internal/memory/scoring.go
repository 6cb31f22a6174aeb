package memory

import (
	"math"
	"time"
)

// retrievalTopK, profileTopK, assimilationTopK implement §4.4's piecewise
// "top-k scales with the active LLM context window" policy: 5/10/20 for
// retrieval, 25/50/75 for profile/recent-memory narratives, 20/35/60 for
// the assimilation candidate list.
func retrievalTopK(contextWindow int) int {
	switch {
	case contextWindow <= 8192:
		return 5
	case contextWindow <= 32768:
		return 10
	default:
		return 20
	}
}

func profileTopK(contextWindow int) int {
	switch {
	case contextWindow <= 8192:
		return 25
	case contextWindow <= 32768:
		return 50
	default:
		return 75
	}
}

func assimilationTopK(contextWindow int) int {
	switch {
	case contextWindow <= 8192:
		return 20
	case contextWindow <= 32768:
		return 35
	default:
		return 60
	}
}

// scoreCandidate reproduces get_relevant_memories' per-candidate scoring:
// semantic_score from L2 distance, key-memory/topic boost on relevance,
// base = semantic*(1-w) + relevance*w, recency boost, past penalty.
func scoreCandidate(cfg scoringConfig, m Memory, l2Distance float64, topicBoosted bool, now time.Time) float64 {
	relevance := m.Relevance
	if m.Type == KindKey || topicBoosted {
		relevance *= cfg.keyMemoryBoost
	}

	semanticScore := 1 - (l2Distance / 2)
	base := semanticScore*(1-cfg.relevanceWeight) + relevance*cfg.relevanceWeight

	hoursSinceUpdate := now.Sub(m.LastUpdated).Hours()
	if hoursSinceUpdate < 0 {
		hoursSinceUpdate = 0
	}
	recencyBoost := 1 + (cfg.maxRecencyBoost-1)*math.Exp(-cfg.recencyDecayRate*hoursSinceUpdate)

	combined := base * recencyBoost
	if m.Status == StatusPast {
		combined *= cfg.pastMemoryPenalty
	}
	return combined
}

// scoringConfig is the subset of config.MemoryConfig the scoring formula
// reads, collected here so scoreCandidate doesn't import internal/config.
type scoringConfig struct {
	keyMemoryBoost    float64
	relevanceWeight   float64
	pastMemoryPenalty float64
	maxRecencyBoost   float64
	recencyDecayRate  float64
}
