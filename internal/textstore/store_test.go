package textstore

import "testing"

func TestMessageRoleRoundTrip(t *testing.T) {
	m := Message{ID: "1", Role: RoleUser, Content: "hi", Tokens: 3}
	if m.Role != RoleUser {
		t.Fatalf("expected RoleUser, got %v", m.Role)
	}
}

func TestMemoryKindConstants(t *testing.T) {
	if MemoryKey == MemoryExtended {
		t.Fatalf("key and extended memory kinds must differ")
	}
	if MemoryCurrent == MemoryPast {
		t.Fatalf("current and past statuses must differ")
	}
}
