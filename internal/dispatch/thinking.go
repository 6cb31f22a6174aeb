package dispatch

import (
	"strings"

	"orakle/internal/events"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkFilter is the pre-filter that runs before command parsing (§4.3):
// it turns <think>...</think> pairs into out-of-band ThinkingSignal events
// and removes their text from the stream the command parser ever sees. An
// unbalanced opening tag (no matching close before the stream ends)
// discards everything from that point on, per spec.
type ThinkFilter struct {
	sink      Sink
	buf       string
	inThink   bool
	discarded bool
}

// Feed consumes one chunk and returns the portion of it (plus any carried
// partial text) that is safe to pass on to the command parser.
func (f *ThinkFilter) Feed(chunk string) string {
	if f.discarded {
		return ""
	}
	f.buf += chunk

	var out strings.Builder
	for {
		if !f.inThink {
			idx := strings.Index(f.buf, thinkOpen)
			if idx == -1 {
				safe := longestSafeFlush(f.buf, thinkOpen)
				out.WriteString(f.buf[:safe])
				f.buf = f.buf[safe:]
				break
			}
			out.WriteString(f.buf[:idx])
			f.buf = f.buf[idx+len(thinkOpen):]
			f.inThink = true
			f.sink.Event(events.ThinkingSignal{State: "start"})
		} else {
			idx := strings.Index(f.buf, thinkClose)
			if idx == -1 {
				// Still inside a think block: thinking text is never
				// yielded, so just discard the safely-flushable part and
				// keep a possible-partial-close-tag suffix.
				safe := longestSafeFlush(f.buf, thinkClose)
				f.buf = f.buf[safe:]
				break
			}
			f.buf = f.buf[idx+len(thinkClose):]
			f.inThink = false
			f.sink.Event(events.ThinkingSignal{State: "stop"})
		}
	}
	return out.String()
}

// Close signals end of stream. An unbalanced open tag at this point means
// the rest of the response (there is none left to give) is discarded; it
// marks the filter so any further Feed calls are no-ops.
func (f *ThinkFilter) Close() {
	if f.inThink {
		f.discarded = true
	}
}
