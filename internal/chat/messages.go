package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is one entry in a conversation. ID is either a store-assigned
// permanent identifier or a temp-<timestamp> placeholder that exists only
// while an AI reply is still streaming.
type Message struct {
	ID        string    `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TempID generates a placeholder identity for a message not yet persisted.
func TempID(now time.Time) string {
	return fmt.Sprintf("temp-%d", now.UnixMilli())
}

// IsTempID reports whether id is a placeholder identity.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, "temp-")
}

// MessageLog is the ordered view of a single conversation. It is owned by the
// turn that loaded it; mutation is always by identity, never by index, so a
// concurrent append cannot clobber an unrelated message.
type MessageLog struct {
	mu       sync.Mutex
	messages []Message
}

func NewMessageLog(messages []Message) *MessageLog {
	return &MessageLog{messages: append([]Message(nil), messages...)}
}

// Append adds a message to the end of the log.
func (l *MessageLog) Append(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
}

// AppendDelta appends delta to the text of the message with the given
// identity. It reports whether the message was found.
func (l *MessageLog) AppendDelta(id, delta string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages {
		if l.messages[i].ID == id {
			l.messages[i].Text += delta
			return true
		}
	}
	return false
}

// SetText replaces the text of the message with the given identity. Used when
// an authoritative full response supersedes accumulated deltas.
func (l *MessageLog) SetText(id, text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages {
		if l.messages[i].ID == id {
			l.messages[i].Text = text
			return true
		}
	}
	return false
}

// Finalize swaps the placeholder identified by tempID for the persisted
// message: identity and text are replaced together. If the placeholder is
// gone the finalized message is appended instead, so a completed reply is
// never dropped; if the permanent identity is already present nothing
// happens, so it is never duplicated either.
func (l *MessageLog) Finalize(tempID string, final Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages {
		if l.messages[i].ID == tempID {
			l.messages[i] = final
			return
		}
	}
	for i := range l.messages {
		if l.messages[i].ID == final.ID {
			return
		}
	}
	l.messages = append(l.messages, final)
}

// Messages returns a copy of the log in order.
func (l *MessageLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

// Transcript concatenates all message text, used for theme identification.
func (l *MessageLog) Transcript() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sb strings.Builder
	for _, m := range l.messages {
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
