package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/llm"
)

// AutoSummaryStore is the persistence the summary worker reads and writes.
type AutoSummaryStore interface {
	FindChatInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)
	SetChatSummary(ctx context.Context, chatID uuid.UUID, summary string) error
}

// Summarizer produces a short recap of a conversation.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.HistoryMessage) (string, error)
}

// AutoSummary reacts to new-day chat creation by writing a summary onto the
// previous day's conversation, so past entries carry a recap without the
// client asking for one.
type AutoSummary struct {
	store      AutoSummaryStore
	summarizer Summarizer
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

func NewAutoSummary(store AutoSummaryStore, summarizer Summarizer, logger *slog.Logger) *AutoSummary {
	return &AutoSummary{
		store:      store,
		summarizer: summarizer,
		logger:     logger,
		timeout:    30 * time.Second,
		now:        time.Now,
	}
}

type chatCreatedEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// HandleChatCreated is the bus handler for chat-created events. Failures are
// logged and dropped; a missed summary is recoverable on demand through the
// summarize endpoint.
func (a *AutoSummary) HandleChatCreated(subject string, data []byte) {
	var evt chatCreatedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		a.logger.Warn("malformed chat-created event", "error", err)
		return
	}
	userID, err := uuid.Parse(evt.UserID)
	if err != nil {
		a.logger.Warn("chat-created event without a user", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.summarizeYesterday(ctx, userID); err != nil {
		a.logger.Warn("previous-day summary failed", "user_id", userID, "error", err)
	}
}

func (a *AutoSummary) summarizeYesterday(ctx context.Context, userID uuid.UUID) error {
	now := a.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	prior, err := a.store.FindChatInRange(ctx, userID, yesterdayStart, todayStart)
	if err != nil {
		return err
	}
	if prior == nil || prior.Summary != "" {
		return nil
	}

	messages, err := a.store.ListMessages(ctx, prior.ID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	history := make([]llm.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, llm.HistoryMessage{Sender: m.Sender, Text: m.Text, CreatedAt: m.CreatedAt})
	}
	summary, err := a.summarizer.Summarize(ctx, history)
	if err != nil {
		return err
	}
	return a.store.SetChatSummary(ctx, prior.ID, summary)
}
