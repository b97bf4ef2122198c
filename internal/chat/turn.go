package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/llm"
	"github.com/avoquity/gentlee-safespace-sub000/internal/stream"
	"github.com/avoquity/gentlee-safespace-sub000/internal/themes"
)

// apologyFallback stands in for the AI reply when the completion service
// fails, so the conversation never visibly breaks.
const apologyFallback = "I'm sorry, I'm having a little trouble finding my words right now. I'm still here with you. Could you tell me that again in a moment?"

// Store is the persistence surface a conversation turn needs.
type Store interface {
	ConversationStore
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)
	ListUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]Message, error)
	InsertMessage(ctx context.Context, chatID uuid.UUID, sender, text string, at time.Time) (Message, error)
	CountUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	UserPlan(ctx context.Context, userID uuid.UUID) (string, error)
	SetChatTheme(ctx context.Context, chatID uuid.UUID, theme string) error
	TouchChat(ctx context.Context, chatID uuid.UUID, at time.Time) error
}

// DeltaStream yields completion text deltas until io.EOF.
type DeltaStream interface {
	Recv() (string, error)
	Close()
}

// Completer opens a streaming completion against the upstream provider.
type Completer interface {
	StreamComplete(ctx context.Context, system string, messages []llm.Message) (DeltaStream, error)
}

// ProviderStreamer adapts the llm client to the Completer interface.
type ProviderStreamer struct {
	Client *llm.Client
}

func (p ProviderStreamer) StreamComplete(ctx context.Context, system string, messages []llm.Message) (DeltaStream, error) {
	s, err := p.Client.StreamComplete(ctx, system, messages)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Publisher emits events onto the bus. A nil Publisher is allowed.
type Publisher interface {
	Publish(subject string, data any) error
}

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	Chat        *Chat
	UserMessage Message
	AIMessage   Message
	Partial     bool
}

// Turns runs the conversation turn pipeline: resolve today's chat, gate by
// plan, persist the user message, stream the AI reply into a placeholder, and
// finalize the placeholder with the persisted reply. Writes within one turn
// are strictly sequential; nothing is enforced across turns.
type Turns struct {
	store        Store
	resolver     *Resolver
	completer    Completer
	bus          Publisher
	logger       *slog.Logger
	memoryWindow time.Duration
	freeCap      int
	now          func() time.Time
}

func NewTurns(store Store, completer Completer, bus Publisher, memoryWindow time.Duration, freeCap int, logger *slog.Logger) *Turns {
	return &Turns{
		store:        store,
		resolver:     NewResolver(store),
		completer:    completer,
		bus:          bus,
		logger:       logger,
		memoryWindow: memoryWindow,
		freeCap:      freeCap,
		now:          time.Now,
	}
}

// Run executes one turn for the user. emit, if non-nil, receives a stream
// event for every delta applied to the placeholder.
//
// Cancellation of ctx mid-stream is degraded, not fatal: the partial reply is
// persisted and finalized on a detached context, matching the rule that writes
// once issued are not cancelable.
func (t *Turns) Run(ctx context.Context, userID uuid.UUID, text string, emit func(stream.Event)) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	plan, err := t.store.UserPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	sent, err := t.store.CountUserMessagesSince(ctx, userID, monthStart)
	if err != nil {
		return nil, err
	}
	if err := AllowMessage(plan, sent, t.freeCap); err != nil {
		return nil, err
	}

	chatRec, created, err := t.resolver.ResolveToday(ctx, userID)
	if err != nil {
		return nil, err
	}
	if created {
		t.publish("safespace.chat.created", map[string]any{
			"chat_id": chatRec.ID.String(),
			"user_id": userID.String(),
		})
	}

	history, err := t.store.ListMessages(ctx, chatRec.ID)
	if err != nil {
		return nil, err
	}
	log := NewMessageLog(history)

	userMsg, err := t.store.InsertMessage(ctx, chatRec.ID, SenderUser, text, now)
	if err != nil {
		return nil, err
	}
	log.Append(userMsg)
	t.publish("safespace.message.stored", map[string]any{
		"message_id": userMsg.ID,
		"chat_id":    chatRec.ID.String(),
		"sender":     SenderUser,
	})

	// Prompt history spans the memory window across the user's chats. Each
	// day is its own chat row, so reading today's log alone would drop
	// yesterday's in-window conversation.
	windowHistory, err := t.store.ListUserMessagesSince(ctx, userID, now.Add(-t.memoryWindow))
	if err != nil {
		return nil, err
	}

	// Placeholder appended before the stream opens; deltas land on it by
	// identity.
	tempID := TempID(now)
	log.Append(Message{ID: tempID, ChatID: chatRec.ID, Sender: SenderAI, CreatedAt: now})

	full, partial := t.streamReply(ctx, log, tempID, toHistory(windowHistory, tempID), emit)

	// The reply is persisted even when ctx was cancelled mid-stream.
	writeCtx := context.WithoutCancel(ctx)
	aiMsg, err := t.store.InsertMessage(writeCtx, chatRec.ID, SenderAI, full, t.now())
	if err != nil {
		// The optimistic log still holds the reply under its placeholder
		// identity; the caller surfaces the write failure.
		return &TurnResult{Chat: chatRec, UserMessage: userMsg, Partial: partial}, err
	}
	log.Finalize(tempID, aiMsg)
	t.publish("safespace.message.stored", map[string]any{
		"message_id": aiMsg.ID,
		"chat_id":    chatRec.ID.String(),
		"sender":     SenderAI,
	})

	if chatRec.Theme == "" {
		if matched := themes.Identify(log.Transcript()); len(matched) > 0 {
			if err := t.store.SetChatTheme(writeCtx, chatRec.ID, matched[0]); err != nil {
				t.logger.Warn("failed to set chat theme", "chat_id", chatRec.ID, "error", err)
			} else {
				chatRec.Theme = matched[0]
			}
		}
	}
	if err := t.store.TouchChat(writeCtx, chatRec.ID, t.now()); err != nil {
		t.logger.Warn("failed to touch chat", "chat_id", chatRec.ID, "error", err)
	}

	return &TurnResult{Chat: chatRec, UserMessage: userMsg, AIMessage: aiMsg, Partial: partial}, nil
}

// streamReply drives the completion stream into the placeholder and returns
// the accumulated text. Upstream failure degrades to the apology fallback
// (or the partial text already received); it never propagates as an error.
func (t *Turns) streamReply(ctx context.Context, log *MessageLog, tempID string, history []llm.HistoryMessage, emit func(stream.Event)) (string, bool) {
	messages := llm.BuildHistory(history, t.memoryWindow, t.now())

	s, err := t.completer.StreamComplete(ctx, llm.SystemPrompt(), messages)
	if err != nil {
		t.logger.Warn("completion stream failed to open", "error", err)
		log.SetText(tempID, apologyFallback)
		t.emitEvent(emit, stream.Event{Chunk: apologyFallback, FullResponse: apologyFallback})
		return apologyFallback, false
	}
	defer s.Close()

	var full string
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return full, false
		}
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled: the partial accumulation is the result.
				return full, true
			}
			t.logger.Warn("completion stream broke", "error", err)
			if full == "" {
				log.SetText(tempID, apologyFallback)
				t.emitEvent(emit, stream.Event{Chunk: apologyFallback, FullResponse: apologyFallback})
				return apologyFallback, false
			}
			return full, true
		}

		full += delta
		log.AppendDelta(tempID, delta)
		t.emitEvent(emit, stream.Event{Chunk: delta, FullResponse: full})
	}
}

func (t *Turns) emitEvent(emit func(stream.Event), ev stream.Event) {
	if emit != nil {
		emit(ev)
	}
}

func (t *Turns) publish(subject string, data any) {
	if t.bus == nil {
		return
	}
	if err := t.bus.Publish(subject, data); err != nil {
		t.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// toHistory maps log messages to prompt history, skipping the open
// placeholder.
func toHistory(messages []Message, tempID string) []llm.HistoryMessage {
	var history []llm.HistoryMessage
	for _, m := range messages {
		if m.ID == tempID {
			continue
		}
		history = append(history, llm.HistoryMessage{Sender: m.Sender, Text: m.Text, CreatedAt: m.CreatedAt})
	}
	return history
}
