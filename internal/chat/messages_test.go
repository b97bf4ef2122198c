package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTempID(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	id := TempID(now)
	if !IsTempID(id) {
		t.Errorf("expected %q to be a temp id", id)
	}
	if IsTempID(uuid.New().String()) {
		t.Error("uuid should not be a temp id")
	}
}

func TestMessageLog_AppendDelta(t *testing.T) {
	log := NewMessageLog(nil)
	log.Append(Message{ID: "m1", Sender: SenderUser, Text: "hello"})
	log.Append(Message{ID: "temp-1", Sender: SenderAI})

	if !log.AppendDelta("temp-1", "I hear") {
		t.Fatal("expected delta to land")
	}
	if !log.AppendDelta("temp-1", " you") {
		t.Fatal("expected delta to land")
	}

	messages := log.Messages()
	if messages[1].Text != "I hear you" {
		t.Errorf("unexpected placeholder text: %q", messages[1].Text)
	}
	if messages[0].Text != "hello" {
		t.Errorf("unrelated message clobbered: %q", messages[0].Text)
	}
}

func TestMessageLog_AppendDelta_MissingID(t *testing.T) {
	log := NewMessageLog(nil)
	if log.AppendDelta("temp-404", "lost") {
		t.Error("expected miss for unknown id")
	}
}

func TestMessageLog_Finalize_SwapsIdentityAndText(t *testing.T) {
	log := NewMessageLog(nil)
	log.Append(Message{ID: "temp-1", Sender: SenderAI, Text: "partial"})

	final := Message{ID: "perm-1", Sender: SenderAI, Text: "full reply"}
	log.Finalize("temp-1", final)

	messages := log.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].ID != "perm-1" || messages[0].Text != "full reply" {
		t.Errorf("swap failed: %+v", messages[0])
	}
}

func TestMessageLog_Finalize_MissingPlaceholderAppends(t *testing.T) {
	log := NewMessageLog(nil)
	log.Append(Message{ID: "m1", Sender: SenderUser, Text: "hello"})

	final := Message{ID: "perm-1", Sender: SenderAI, Text: "reply"}
	log.Finalize("temp-gone", final)

	messages := log.Messages()
	if len(messages) != 2 {
		t.Fatalf("finalized reply dropped: %d messages", len(messages))
	}
	if messages[1].ID != "perm-1" {
		t.Errorf("expected appended final message, got %+v", messages[1])
	}
}

func TestMessageLog_Finalize_NeverDuplicates(t *testing.T) {
	log := NewMessageLog(nil)
	log.Append(Message{ID: "temp-1", Sender: SenderAI})

	final := Message{ID: "perm-1", Sender: SenderAI, Text: "reply"}
	log.Finalize("temp-1", final)
	log.Finalize("temp-1", final) // double finalize: placeholder gone, id present

	count := 0
	for _, m := range log.Messages() {
		if m.ID == "perm-1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected finalized message exactly once, got %d", count)
	}
}

func TestMessageLog_SetText(t *testing.T) {
	log := NewMessageLog(nil)
	log.Append(Message{ID: "temp-1", Sender: SenderAI, Text: "dup dup"})

	if !log.SetText("temp-1", "authoritative") {
		t.Fatal("expected set to land")
	}
	if got := log.Messages()[0].Text; got != "authoritative" {
		t.Errorf("unexpected text: %q", got)
	}
}
