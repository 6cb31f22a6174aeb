package dispatch

import (
	"context"
	"regexp"
	"strings"
)

const openSentinel = "<<<ORAKLE"

// closeLineRE matches a line whose trimmed content is exactly ORAKLE or
// ORAKLE;, anchored to line boundaries as §4.3 requires.
var closeLineRE = regexp.MustCompile(`(?m)^[ \t]*ORAKLE;?[ \t]*$`)

type parserState int

const (
	stateText parserState = iota
	stateCommand
)

// Parser is the state machine over LLM output chunks described in §4.3.
// It is not safe for concurrent use; one Parser belongs to one in-flight
// turn's response stream.
type Parser struct {
	ctx     context.Context
	d       *Dispatcher
	sink    Sink
	chatCtx ChatContext
	think   *ThinkFilter

	state parserState
	text  string // buffered state-T text, pending sentinel confirmation
	cmd   string // buffered state-C command text

	// onCommand, when set, replaces processCommand as the handler run on
	// a matched close delimiter. Tests use this to exercise the state
	// machine's buffering/splitting behavior without a real Dispatcher.
	onCommand func(query string)
}

// Feed consumes one chunk of raw LLM output (already think-filtered by the
// caller, or fed through Feed directly which runs the filter itself).
func (p *Parser) Feed(chunk string) {
	clean := p.think.Feed(chunk)
	if clean == "" {
		return
	}
	p.feedFiltered(clean)
}

func (p *Parser) feedFiltered(chunk string) {
	switch p.state {
	case stateText:
		p.text += chunk
		idx := strings.Index(p.text, openSentinel)
		if idx == -1 {
			safe := longestSafeFlush(p.text, openSentinel)
			if safe > 0 {
				p.sink.Text(p.text[:safe])
				p.text = p.text[safe:]
			}
			return
		}
		if idx > 0 {
			p.sink.Text(p.text[:idx])
		}
		rest := p.text[idx+len(openSentinel):]
		p.text = ""
		p.state = stateCommand
		p.cmd = ""
		if rest != "" {
			p.feedFiltered(rest)
		}

	case stateCommand:
		p.cmd += chunk
		loc := closeLineRE.FindStringIndex(p.cmd)
		if loc == nil {
			return
		}
		content := strings.Trim(p.cmd[:loc[0]], "\n")
		remainder := strings.TrimPrefix(p.cmd[loc[1]:], "\n")
		p.cmd = ""
		p.state = stateText

		if p.onCommand != nil {
			p.onCommand(content)
		} else {
			p.processCommand(content)
		}

		if remainder != "" {
			p.feedFiltered(remainder)
		}
	}
}

// Close flushes whatever remains buffered at end of stream. In state T,
// any held-back sentinel-prefix suffix is genuinely just text. In state C
// with no matched close, the sentinel and everything after it was never a
// real command, so it is yielded back as plain text rather than lost.
func (p *Parser) Close() {
	p.think.Close()
	switch p.state {
	case stateText:
		if p.text != "" {
			p.sink.Text(p.text)
			p.text = ""
		}
	case stateCommand:
		if p.cmd != "" {
			p.sink.Text(openSentinel + p.cmd)
			p.cmd = ""
		}
	}
}
