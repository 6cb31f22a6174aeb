package dispatch

import (
	"testing"

	"orakle/internal/events"
)

func TestThinkFilter_StripsCompleteBlock(t *testing.T) {
	sink := &captureSink{}
	f := &ThinkFilter{sink: sink}
	out := f.Feed("before <think>reasoning here</think> after")
	f.Close()
	if out != "before  after" {
		t.Fatalf("out = %q", out)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected start+stop signals, got %v", sink.events)
	}
	start, ok := sink.events[0].(events.ThinkingSignal)
	if !ok || start.State != "start" {
		t.Fatalf("expected start signal, got %#v", sink.events[0])
	}
	stop, ok := sink.events[1].(events.ThinkingSignal)
	if !ok || stop.State != "stop" {
		t.Fatalf("expected stop signal, got %#v", sink.events[1])
	}
}

func TestThinkFilter_SplitTagAcrossChunks(t *testing.T) {
	sink := &captureSink{}
	f := &ThinkFilter{sink: sink}
	out := f.Feed("start <thi") + f.Feed("nk>hidden</thi") + f.Feed("nk> end")
	f.Close()
	if out != "start  end" {
		t.Fatalf("out = %q", out)
	}
}

func TestThinkFilter_UnbalancedOpenDiscardsRemainder(t *testing.T) {
	sink := &captureSink{}
	f := &ThinkFilter{sink: sink}
	out := f.Feed("before <think>never closes")
	f.Close()
	if out != "before " {
		t.Fatalf("out = %q", out)
	}
	if f.Feed("more text") != "" {
		t.Fatalf("expected discarded filter to yield nothing further")
	}
}

func TestThinkFilter_NoThinkTagsPassesThrough(t *testing.T) {
	sink := &captureSink{}
	f := &ThinkFilter{sink: sink}
	out := f.Feed("just ordinary text")
	f.Close()
	if out != "just ordinary text" {
		t.Fatalf("out = %q", out)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no signals, got %v", sink.events)
	}
}
