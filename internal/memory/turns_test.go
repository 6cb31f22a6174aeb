package memory

import (
	"testing"
	"time"

	"orakle/internal/textstore"
)

func msg(role textstore.Role, id, content string, ts int) textstore.Message {
	return textstore.Message{ID: id, Role: role, Content: content, Timestamp: time.Unix(int64(ts), 0)}
}

func TestPairMessageTurns_DropsUnpairedMessages(t *testing.T) {
	messages := []textstore.Message{
		msg(textstore.RoleSystem, "s1", "sys", 0),
		msg(textstore.RoleUser, "u1", "hi", 1),
		msg(textstore.RoleAssistant, "a1", "hello", 2),
		msg(textstore.RoleUser, "u2", "trailing, no reply yet", 3),
	}
	turns := pairMessageTurns(messages)
	if len(turns) != 1 {
		t.Fatalf("expected exactly one paired turn, got %d: %+v", len(turns), turns)
	}
	if turns[0].user.ID != "u1" || turns[0].assistant.ID != "a1" {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
}

func TestPairMessageTurns_NoMessagesNoTurns(t *testing.T) {
	if turns := pairMessageTurns(nil); len(turns) != 0 {
		t.Fatalf("expected no turns, got %v", turns)
	}
}

func TestBuildTurnSnippet_JoinsTurnsInOrder(t *testing.T) {
	turns := []messageTurn{
		{user: msg(textstore.RoleUser, "u1", "hi", 1), assistant: msg(textstore.RoleAssistant, "a1", "hello", 2)},
		{user: msg(textstore.RoleUser, "u2", "how are you", 3), assistant: msg(textstore.RoleAssistant, "a2", "great", 4)},
	}
	got := buildTurnSnippet(turns)
	want := "User: hi\nAssistant: hello\nUser: how are you\nAssistant: great"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
