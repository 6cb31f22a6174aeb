// Package reasoning implements the two lexicon/rule-based heuristics
// Conversation Manager (§4.5) needs that have no first-class Go or
// pack-wide NLP library to lean on: the reasoning-effort scorer (step 2)
// and the TTS sentence splitter (step 8). Grounded on
// original_source/ainara/framework/chat_manager.py's
// _calculate_reasoning_level_heuristic and _extract_complete_sentences,
// reimplemented as word-level lexicon rules since the original's spaCy
// POS/dependency tagging has no equivalent anywhere in the retrieval pack
// (same justification as internal/memory/gate.go's substantiveness gate).
package reasoning

import (
	"strings"
)

// reasoningVerbs mirrors the original's high-impact verb set exactly.
var reasoningVerbs = map[string]bool{
	"analyze": true, "assess": true, "compare": true, "conduct": true,
	"contrast": true, "critique": true, "describe": true, "design": true,
	"develop": true, "differentiate": true, "evaluate": true, "explain": true,
	"find": true, "formulate": true, "investigate": true, "justify": true,
	"predict": true, "recommend": true, "suggest": true, "summarize": true,
	"synthesize": true, "write": true,
}

var hypotheticalPhrases = []string{
	"what if", "what would", "what are the", "what is the",
}

var explanatoryInterrogatives = map[string]bool{"why": true, "how": true}

// irregularComparatives covers the common comparative/superlative forms
// that don't end in -er/-est, standing in for the original's JJR/RBR/
// JJS/RBS POS tags.
var irregularComparatives = map[string]bool{
	"better": true, "best": true, "worse": true, "worst": true,
	"more": true, "most": true, "less": true, "least": true,
	"further": true, "furthest": true, "farther": true, "farthest": true,
}

// Level computes the reasoning-effort score in [0, maxLevel] for query,
// per §4.5 step 2. Queries of 3 tokens or fewer always yield 0, matching
// the original's short-circuit for trivial exchanges.
func Level(query string, maxLevel float64) float64 {
	words := strings.Fields(query)
	if len(words) <= 3 {
		return 0
	}

	lower := strings.ToLower(query)
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = trimPunct(strings.ToLower(w))
	}

	var score float64
	rootVerb := tokens[0]

	// Rule 1: a reasoning verb in the leading position approximates the
	// original's "root verb" dependency check well enough for queries
	// phrased as imperatives ("Explain why...", "Compare X and Y").
	if reasoningVerbs[rootVerb] {
		score += 1.0
	}

	// Rule 2: explanatory interrogative at position 0.
	if explanatoryInterrogatives[tokens[0]] {
		score += 0.4
	}

	// Rule 3: hypothetical phrases anywhere in the query.
	for _, phrase := range hypotheticalPhrases {
		if strings.Contains(lower, phrase) {
			score += 1.0
			break
		}
	}

	// Rule 4: any reasoning verb elsewhere, only if no strong signal yet.
	if score < 0.5 {
		for _, tok := range tokens[1:] {
			if tok != rootVerb && reasoningVerbs[tok] {
				score += 0.2
				break
			}
		}
	}

	// Rule 5: comparative/superlative, by suffix or the irregular set.
	for _, tok := range tokens {
		if irregularComparatives[tok] || hasComparativeSuffix(tok) {
			score += 0.15
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score * maxLevel
}

func hasComparativeSuffix(tok string) bool {
	if len(tok) < 5 {
		return false
	}
	return strings.HasSuffix(tok, "er") || strings.HasSuffix(tok, "est")
}

func trimPunct(s string) string {
	return strings.Trim(s, ".,!?;:\"'()")
}

// EffortLevel maps a raw [0, maxLevel] heuristic score onto one of the
// adapter's supported reasoning-effort tiers, the scaling
// internal/conversation needs before setting llmadapter.ChatOptions.
func EffortLevel(score, maxLevel float64) string {
	if maxLevel <= 0 {
		return ""
	}
	ratio := score / maxLevel
	switch {
	case ratio <= 0:
		return ""
	case ratio < 0.4:
		return "low"
	case ratio < 0.75:
		return "medium"
	default:
		return "high"
	}
}
