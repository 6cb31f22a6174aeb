package memory

import "strings"

// fillerWords is a small closed set of greetings/filler tokens that carry
// no noun/verb/adjective content on their own, standing in for the POS
// tagger the original implementation runs (spaCy); no NLP library exists
// anywhere in the retrieval pack, so this is a deliberately narrow stdlib
// heuristic rather than an attempt at real POS tagging (see DESIGN.md).
var fillerWords = map[string]bool{
	"hi": true, "hey": true, "hello": true, "yo": true, "ok": true, "okay": true,
	"thanks": true, "thank": true, "you": true, "yes": true, "no": true, "yeah": true,
	"sure": true, "please": true, "bye": true, "goodbye": true, "hmm": true, "uh": true,
	"um": true, "and": true, "the": true, "a": true, "an": true, "is": true, "it": true,
	"to": true, "of": true, "for": true,
}

// isQuerySubstantive mirrors _is_query_substantive: only the last line of a
// possibly multi-line query is inspected, with everything up to its first
// ":" (a "role: " prefix) stripped, and the query is substantive if it
// contains at least one token of three or more characters that isn't
// punctuation or a filler word.
func isQuerySubstantive(query string) bool {
	lines := strings.Split(strings.TrimSpace(query), "\n")
	lastLine := lines[len(lines)-1]

	actual := lastLine
	if idx := strings.Index(lastLine, ":"); idx >= 0 {
		actual = lastLine[idx+1:]
	}
	actual = strings.TrimSpace(actual)

	for _, word := range strings.Fields(actual) {
		token := strings.ToLower(strings.Trim(word, ".,!?;:'\"()"))
		if token == "" {
			continue
		}
		if fillerWords[token] {
			continue
		}
		if len(token) >= 3 {
			return true
		}
	}
	return false
}
