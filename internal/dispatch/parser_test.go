package dispatch

import (
	"testing"

	"orakle/internal/events"
)

// captureSink implements Sink, recording every text chunk and event it
// receives in order, for assertions in both parser and request tests.
type captureSink struct {
	text   []string
	events []events.Event
}

func (s *captureSink) Text(t string)        { s.text = append(s.text, t) }
func (s *captureSink) Event(e events.Event) { s.events = append(s.events, e) }

func (s *captureSink) joinedText() string {
	out := ""
	for _, t := range s.text {
		out += t
	}
	return out
}

func newTestParser(sink Sink, onCommand func(string)) *Parser {
	return &Parser{
		sink:      sink,
		think:     &ThinkFilter{sink: sink},
		state:     stateText,
		onCommand: onCommand,
	}
}

func TestParser_PlainTextPassesThrough(t *testing.T) {
	sink := &captureSink{}
	p := newTestParser(sink, func(string) { t.Fatal("should not process a command") })
	p.Feed("hello world")
	p.Close()
	if got := sink.joinedText(); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestParser_CommandSplitAcrossChunks(t *testing.T) {
	sink := &captureSink{}
	var captured string
	p := newTestParser(sink, func(q string) { captured = q })

	p.Feed("before <<<OR")
	p.Feed("AKLE\nwhat is the weather\nORAKLE\nafter")
	p.Close()

	if captured != "what is the weather" {
		t.Fatalf("captured = %q", captured)
	}
	if got := sink.joinedText(); got != "before after" {
		t.Fatalf("text = %q", got)
	}
}

func TestParser_SemicolonCloseVariant(t *testing.T) {
	sink := &captureSink{}
	var captured string
	p := newTestParser(sink, func(q string) { captured = q })
	p.Feed("<<<ORAKLE\nsome query\nORAKLE;\nrest")
	p.Close()
	if captured != "some query" {
		t.Fatalf("captured = %q", captured)
	}
	if sink.joinedText() != "rest" {
		t.Fatalf("text = %q", sink.joinedText())
	}
}

func TestParser_UnclosedCommandFlushedAsTextOnClose(t *testing.T) {
	sink := &captureSink{}
	p := newTestParser(sink, func(string) { t.Fatal("should not process a command") })
	p.Feed("<<<ORAKLE\nnever closes")
	p.Close()
	if got := sink.joinedText(); got != "<<<ORAKLE\nnever closes" {
		t.Fatalf("got %q", got)
	}
}

func TestParser_FalsePositiveOpeningPrefixDoesNotFlushEarly(t *testing.T) {
	sink := &captureSink{}
	p := newTestParser(sink, func(string) { t.Fatal("should not process a command") })
	p.Feed("this has << but not the real thing")
	p.Close()
	if got := sink.joinedText(); got != "this has << but not the real thing" {
		t.Fatalf("got %q", got)
	}
}

func TestParser_MultipleCommandsInOneStream(t *testing.T) {
	sink := &captureSink{}
	var queries []string
	p := newTestParser(sink, func(q string) { queries = append(queries, q) })
	p.Feed("a <<<ORAKLE\nfirst\nORAKLE\nb <<<ORAKLE\nsecond\nORAKLE\nc")
	p.Close()
	if len(queries) != 2 || queries[0] != "first" || queries[1] != "second" {
		t.Fatalf("queries = %v", queries)
	}
	if got := sink.joinedText(); got != "a b c" {
		t.Fatalf("text = %q", got)
	}
}
