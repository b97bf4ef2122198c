package stream

import (
	"encoding/json"
	"fmt"
)

// Event is one frame of the companion completion stream. Chunk is an
// incremental text delta; FullResponse, when present, is the authoritative
// accumulated text so far; Error signals upstream failure and ends the stream.
type Event struct {
	Chunk        string `json:"chunk,omitempty"`
	FullResponse string `json:"fullResponse,omitempty"`
	Error        string `json:"error,omitempty"`

	// Done-event fields: the persisted identity the client swaps its
	// placeholder for.
	Done      bool   `json:"done,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
}

// ParseEvent decodes one event payload as emitted by the chat-completion
// endpoint.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parse stream event: %w", err)
	}
	return ev, nil
}

// Accumulator tracks the response text across events. FullResponse fields are
// authoritative: when one is present it replaces the accumulation outright, so
// duplicated or re-delivered chunk fields cannot corrupt the text.
type Accumulator struct {
	text string
}

// Apply folds one event into the accumulation and returns the current text.
func (a *Accumulator) Apply(ev Event) string {
	if ev.FullResponse != "" {
		a.text = ev.FullResponse
	} else {
		a.text += ev.Chunk
	}
	return a.text
}

// Text returns the accumulated response so far.
func (a *Accumulator) Text() string {
	return a.text
}
