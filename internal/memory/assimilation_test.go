package memory

import "testing"

func TestParseAssimilationDecision_Create(t *testing.T) {
	d, err := parseAssimilationDecision(`{"action":"create","target":"key","topic":"job","text":"works as a vet"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionCreate || d.Target != KindKey || d.Topic != "job" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestParseAssimilationDecision_StripsSurroundingText(t *testing.T) {
	raw := "Sure, here is my decision:\n{\"action\":\"ignore\"}\nHope that helps!"
	d, err := parseAssimilationDecision(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionIgnore {
		t.Fatalf("expected ignore, got %+v", d)
	}
}

func TestParseAssimilationDecision_DefaultsToIgnoreWhenActionMissing(t *testing.T) {
	d, err := parseAssimilationDecision(`{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionIgnore {
		t.Fatalf("expected default ignore action, got %q", d.Action)
	}
}

func TestBuildAssimilationPrompt_IncludesCandidates(t *testing.T) {
	prompt := buildAssimilationPrompt("user: hi\nassistant: hello", []Memory{
		{ID: "m1", Type: KindKey, Topic: "name", Text: "is called Sam", Relevance: 3, Status: StatusCurrent},
	})
	if !contains(prompt, "m1") || !contains(prompt, "is called Sam") {
		t.Fatalf("expected prompt to include candidate memory, got: %s", prompt)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
