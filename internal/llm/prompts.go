package llm

import (
	"context"
	"strings"
	"time"
)

const companionSystem = `You are Gentlee, a warm and grounded emotional-support companion.
You listen first. Reflect what the person is feeling before offering anything else.
Keep replies short and conversational, never clinical. Ask at most one gentle
question per reply. You are not a therapist and you never diagnose; if someone
appears to be in crisis, encourage them to reach out to local emergency services
or a crisis line.`

const summarySystem = `Summarise the following journal conversation in two or three
warm, first-person-neutral sentences. Capture what the person was feeling and any
shift that happened during the conversation. Do not quote them verbatim.`

const summaryMaxTokens = 300

// HistoryMessage is one stored conversation message with enough context to
// build a completion prompt from it.
type HistoryMessage struct {
	Sender    string // "user" or "ai"
	Text      string
	CreatedAt time.Time
}

// SystemPrompt returns the companion persona prompt.
func SystemPrompt() string {
	return companionSystem
}

// BuildHistory converts stored history into completion messages, keeping only
// messages written within the memory window ending at now. The window bounds
// how much past conversation is replayed to the provider on every turn.
func BuildHistory(history []HistoryMessage, window time.Duration, now time.Time) []Message {
	cutoff := now.Add(-window)
	var messages []Message
	for _, h := range history {
		if h.CreatedAt.Before(cutoff) {
			continue
		}
		role := "user"
		if h.Sender == "ai" {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: h.Text})
	}
	return messages
}

// Summarize produces a short summary of a conversation transcript.
func (c *Client) Summarize(ctx context.Context, messages []HistoryMessage) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		if m.Sender == "ai" {
			sb.WriteString("Companion: ")
		} else {
			sb.WriteString("Person: ")
		}
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return c.Complete(ctx, summarySystem, []Message{{Role: "user", Content: sb.String()}}, summaryMaxTokens)
}
