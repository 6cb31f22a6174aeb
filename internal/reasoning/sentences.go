package reasoning

import (
	"regexp"
	"strings"
)

// sentenceBoundaryRE splits a paragraph on a trailing run of sentence-
// ending punctuation followed by whitespace, keeping the punctuation with
// the sentence it closes. Stands in for the original's spaCy-based
// sent.text segmentation (original _extract_complete_sentences).
var sentenceBoundaryRE = regexp.MustCompile(`([.!?]+\s+)`)

// timestampPrefixRE strips a leading "[HH:MM] " marker before a sentence
// reaches TTS synthesis, exactly as the original's cleaned_sentence regex.
var timestampPrefixRE = regexp.MustCompile(`^\[\d{1,2}:\d{2}\]\s*`)

// SentenceBuffer accumulates streamed text and yields complete sentences
// as they close, holding back an incomplete trailing fragment. Used by
// Conversation Manager's TTS buffering (§4.5 step 8): only complete
// sentences are handed to a speech synthesizer.
type SentenceBuffer struct {
	buf string
}

// Feed appends chunk and returns every sentence that is now complete. An
// in-progress trailing sentence (or partial paragraph) stays buffered.
func (b *SentenceBuffer) Feed(chunk string) []string {
	b.buf += chunk

	idx := lastNewline(b.buf)
	if idx == -1 {
		return nil
	}
	// Only paragraphs terminated by a newline are considered complete,
	// mirroring the original's paragraph-then-sentence two-pass split.
	ready := b.buf[:idx+1]
	b.buf = b.buf[idx+1:]
	return splitParagraphIntoSentences(ready)
}

// Flush returns whatever remains buffered (a final, newline-less
// fragment) as its own sentence list, called once the stream ends.
func (b *SentenceBuffer) Flush() []string {
	if b.buf == "" {
		return nil
	}
	sentences := splitParagraphIntoSentences(b.buf)
	b.buf = ""
	return sentences
}

func lastNewline(s string) int {
	return strings.LastIndexByte(s, '\n')
}

func splitParagraphIntoSentences(text string) []string {
	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		parts := sentenceBoundaryRE.Split(paragraph, -1)
		seps := sentenceBoundaryRE.FindAllString(paragraph, -1)
		for i, part := range parts {
			sentence := part
			if i < len(seps) {
				sentence += seps[i]
			}
			sentence = strings.TrimSpace(sentence)
			if sentence != "" {
				out = append(out, sentence)
			}
		}
	}
	return out
}

// StripTimestampPrefix removes a leading "[HH:MM] " marker before a
// sentence is handed to speech synthesis.
func StripTimestampPrefix(sentence string) string {
	return timestampPrefixRE.ReplaceAllString(sentence, "")
}
