package conversation

import "testing"

func eventTexts(events []DocEvent, kind DocEventKind) []string {
	var out []string
	for _, e := range events {
		switch kind {
		case DocText:
			if e.Kind == DocText {
				out = append(out, e.Text)
			}
		case DocBody:
			if e.Kind == DocBody {
				out = append(out, e.Body)
			}
		}
	}
	return out
}

func TestDocBlockFilter_PlainTextPassesThrough(t *testing.T) {
	var d DocBlockFilter
	events := d.Feed("just some ordinary text")
	events = append(events, d.Close()...)
	texts := eventTexts(events, DocText)
	if len(texts) != 1 || texts[0] != "just some ordinary text" {
		t.Fatalf("got %v", events)
	}
}

func TestDocBlockFilter_RecognizesFencedBlock(t *testing.T) {
	var d DocBlockFilter
	events := d.Feed("here is code:\n```go\nfmt.Println(\"hi\")\n```\nand after")

	var sawOpen bool
	var format string
	var body string
	var before, after []string
	for _, e := range events {
		switch e.Kind {
		case DocOpen:
			sawOpen = true
			format = e.Format
		case DocBody:
			body = e.Body
		case DocText:
			if !sawOpen {
				before = append(before, e.Text)
			} else {
				after = append(after, e.Text)
			}
		}
	}
	if !sawOpen || format != "go" {
		t.Fatalf("expected a go-tagged open event, got %v", events)
	}
	if body != "fmt.Println(\"hi\")" {
		t.Fatalf("got body %q", body)
	}
	if len(before) != 1 || before[0] != "here is code:\n" {
		t.Fatalf("got before %v", before)
	}
	if len(after) != 1 || after[0] != "and after" {
		t.Fatalf("got after %v", after)
	}
}

func TestDocBlockFilter_FenceSplitAcrossChunks(t *testing.T) {
	var d DocBlockFilter
	var all []DocEvent
	all = append(all, d.Feed("before ``")...)
	all = append(all, d.Feed("`py")...)
	all = append(all, d.Feed("thon\nprint(1)\n```")...)
	all = append(all, d.Close()...)

	var sawOpen bool
	var format, body string
	for _, e := range all {
		if e.Kind == DocOpen {
			sawOpen = true
			format = e.Format
		}
		if e.Kind == DocBody {
			body = e.Body
		}
	}
	if !sawOpen || format != "python" {
		t.Fatalf("expected python fence open, got %v", all)
	}
	if body != "print(1)" {
		t.Fatalf("got body %q", body)
	}
}

func TestDocBlockFilter_UnclosedFenceFlushedVerbatimOnClose(t *testing.T) {
	var d DocBlockFilter
	d.Feed("```go\nfmt.Println(1)\n")
	events := d.Close()
	if len(events) != 1 || events[0].Kind != DocText {
		t.Fatalf("expected one plain text event, got %v", events)
	}
	want := "```go\nfmt.Println(1)\n"
	if events[0].Text != want {
		t.Fatalf("got %q, want %q", events[0].Text, want)
	}
}
