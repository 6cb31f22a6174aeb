package memory

import "testing"

func TestIsQuerySubstantive(t *testing.T) {
	cases := map[string]bool{
		"hi":            false,
		"hello":         false,
		"ok thanks":     false,
		"yes please":    false,
		"remind me about my dentist appointment":                             true,
		"\nuser: hi\nassistant: hello\nuser: tell me about quantum computing": true,
	}
	for query, want := range cases {
		if got := isQuerySubstantive(query); got != want {
			t.Errorf("isQuerySubstantive(%q) = %v, want %v", query, got, want)
		}
	}
}
