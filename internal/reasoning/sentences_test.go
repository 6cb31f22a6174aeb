package reasoning

import (
	"reflect"
	"testing"
)

func TestSentenceBuffer_HoldsIncompleteParagraph(t *testing.T) {
	var b SentenceBuffer
	got := b.Feed("The sky is blue. It is also")
	if got != nil {
		t.Fatalf("expected nothing yet, got %v", got)
	}
}

func TestSentenceBuffer_YieldsOnParagraphClose(t *testing.T) {
	var b SentenceBuffer
	got := b.Feed("The sky is blue. It is warm today.\n")
	want := []string{"The sky is blue.", "It is warm today."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSentenceBuffer_FlushReturnsTrailingFragment(t *testing.T) {
	var b SentenceBuffer
	b.Feed("no newline yet")
	got := b.Flush()
	want := []string{"no newline yet"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSentenceBuffer_SplitAcrossMultipleFeeds(t *testing.T) {
	var b SentenceBuffer
	var all []string
	all = append(all, b.Feed("Hello there. How ")...)
	all = append(all, b.Feed("are you today?\n")...)
	want := []string{"Hello there.", "How are you today?"}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("got %v, want %v", all, want)
	}
}

func TestStripTimestampPrefix(t *testing.T) {
	got := StripTimestampPrefix("[03:45] the result is ready")
	if got != "the result is ready" {
		t.Fatalf("got %q", got)
	}
	got = StripTimestampPrefix("no timestamp here")
	if got != "no timestamp here" {
		t.Fatalf("got %q", got)
	}
}
