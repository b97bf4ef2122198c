package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/llm"
	"github.com/avoquity/gentlee-safespace-sub000/internal/stream"
)

// fakeStore is an in-memory Store for turn tests.
type fakeStore struct {
	mu        sync.Mutex
	chats     []*Chat
	messages  map[uuid.UUID][]Message
	plan      string
	insertErr error
	themes    map[uuid.UUID]string
}

func newFakeStore(plan string) *fakeStore {
	return &fakeStore{
		plan:     plan,
		messages: make(map[uuid.UUID][]Message),
		themes:   make(map[uuid.UUID]string),
	}
}

func (s *fakeStore) FindChatInRange(_ context.Context, userID uuid.UUID, start, end time.Time) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.UserID == userID && !c.CreatedAt.Before(start) && c.CreatedAt.Before(end) {
			return c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateChat(_ context.Context, userID uuid.UUID, createdAt time.Time) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Chat{ID: uuid.New(), UserID: userID, CreatedAt: createdAt, LastUpdated: createdAt}
	s.chats = append(s.chats, c)
	return c, nil
}

func (s *fakeStore) ListMessages(_ context.Context, chatID uuid.UUID) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[chatID]...), nil
}

func (s *fakeStore) InsertMessage(_ context.Context, chatID uuid.UUID, sender, text string, at time.Time) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil && sender == SenderAI {
		return Message{}, s.insertErr
	}
	m := Message{ID: uuid.New().String(), ChatID: chatID, Sender: sender, Text: text, CreatedAt: at}
	s.messages[chatID] = append(s.messages[chatID], m)
	return m, nil
}

func (s *fakeStore) ListUserMessagesSince(_ context.Context, userID uuid.UUID, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, c := range s.chats {
		if c.UserID != userID {
			continue
		}
		for _, m := range s.messages[c.ID] {
			if !m.CreatedAt.Before(since) {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) CountUserMessagesSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.chats {
		if c.UserID != userID {
			continue
		}
		for _, m := range s.messages[c.ID] {
			if m.Sender == SenderUser && !m.CreatedAt.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (s *fakeStore) UserPlan(_ context.Context, _ uuid.UUID) (string, error) {
	return s.plan, nil
}

func (s *fakeStore) SetChatTheme(_ context.Context, chatID uuid.UUID, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes[chatID] = theme
	return nil
}

func (s *fakeStore) TouchChat(_ context.Context, chatID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.ID == chatID {
			c.LastUpdated = at
		}
	}
	return nil
}

// scriptedStream replays deltas, invoking afterDelta between them, then ends
// with finalErr (io.EOF by default).
type scriptedStream struct {
	deltas     []string
	i          int
	finalErr   error
	afterDelta func(i int)
}

func (s *scriptedStream) Recv() (string, error) {
	if s.i < len(s.deltas) {
		delta := s.deltas[s.i]
		s.i++
		if s.afterDelta != nil {
			s.afterDelta(s.i)
		}
		return delta, nil
	}
	if s.finalErr != nil {
		return "", s.finalErr
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() {}

type scriptedCompleter struct {
	stream  *scriptedStream
	openErr error
	got     []llm.Message
}

func (c *scriptedCompleter) StreamComplete(_ context.Context, _ string, messages []llm.Message) (DeltaStream, error) {
	c.got = messages
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

type busRecorder struct {
	mu       sync.Mutex
	subjects []string
}

func (b *busRecorder) Publish(subject string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func testTurns(store Store, completer Completer, bus Publisher) *Turns {
	turns := NewTurns(store, completer, bus, 14*24*time.Hour, 20, slog.Default())
	turns.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	turns.resolver.now = turns.now
	return turns
}

func TestRun_EndToEnd(t *testing.T) {
	store := newFakeStore("free")
	completer := &scriptedCompleter{stream: &scriptedStream{deltas: []string{"I hear", " that", " work..."}}}
	bus := &busRecorder{}
	turns := testTurns(store, completer, bus)

	var events []stream.Event
	result, err := turns.Run(context.Background(), uuid.New(), "I feel anxious about work", func(ev stream.Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Chat == nil {
		t.Fatal("expected a chat")
	}
	if result.UserMessage.Text != "I feel anxious about work" {
		t.Errorf("unexpected user message: %+v", result.UserMessage)
	}
	if result.AIMessage.Text != "I hear that work..." {
		t.Errorf("unexpected ai reply: %q", result.AIMessage.Text)
	}
	if IsTempID(result.AIMessage.ID) {
		t.Errorf("finalized reply still has placeholder id: %s", result.AIMessage.ID)
	}
	if result.Partial {
		t.Error("expected complete result")
	}

	// Deltas progressed the fullResponse.
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].FullResponse != "I hear that" {
		t.Errorf("unexpected mid-stream fullResponse: %q", events[1].FullResponse)
	}

	// Both messages persisted, in order.
	stored := store.messages[result.Chat.ID]
	if len(stored) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(stored))
	}
	if stored[0].Sender != SenderUser || stored[1].Sender != SenderAI {
		t.Errorf("unexpected persistence order: %+v", stored)
	}

	// Theme extracted from the transcript.
	if store.themes[result.Chat.ID] != "Anxiety" {
		t.Errorf("expected Anxiety theme, got %q", store.themes[result.Chat.ID])
	}

	// Events published for chat creation and both messages.
	if len(bus.subjects) != 3 {
		t.Errorf("expected 3 bus events, got %v", bus.subjects)
	}
	if bus.subjects[0] != "safespace.chat.created" {
		t.Errorf("expected chat.created first, got %v", bus.subjects)
	}
}

func TestRun_EmptyMessageRejected(t *testing.T) {
	turns := testTurns(newFakeStore("free"), &scriptedCompleter{}, nil)

	_, err := turns.Run(context.Background(), uuid.New(), "   ", nil)
	if !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestRun_FreePlanCapped(t *testing.T) {
	store := newFakeStore("free")
	turns := testTurns(store, &scriptedCompleter{stream: &scriptedStream{deltas: []string{"ok"}}}, nil)
	turns.freeCap = 1

	userID := uuid.New()
	if _, err := turns.Run(context.Background(), userID, "first entry today", nil); err != nil {
		t.Fatalf("first message should pass: %v", err)
	}
	_, err := turns.Run(context.Background(), userID, "second entry today", nil)
	if !errors.Is(err, ErrMessageLimit) {
		t.Errorf("expected ErrMessageLimit, got %v", err)
	}
}

func TestRun_PaidPlanUncapped(t *testing.T) {
	store := newFakeStore("monthly")
	turns := testTurns(store, &scriptedCompleter{stream: &scriptedStream{deltas: []string{"ok"}}}, nil)
	turns.freeCap = 0

	if _, err := turns.Run(context.Background(), uuid.New(), "hello there", nil); err != nil {
		t.Fatalf("paid plan should not be capped: %v", err)
	}
}

func TestRun_StreamOpenFailureFallsBackToApology(t *testing.T) {
	store := newFakeStore("free")
	completer := &scriptedCompleter{openErr: errors.New("connection refused")}
	turns := testTurns(store, completer, nil)

	result, err := turns.Run(context.Background(), uuid.New(), "rough day", nil)
	if err != nil {
		t.Fatalf("stream failure must degrade, not fail the turn: %v", err)
	}
	if result.AIMessage.Text != apologyFallback {
		t.Errorf("expected apology fallback, got %q", result.AIMessage.Text)
	}
}

func TestRun_MidStreamErrorKeepsPartial(t *testing.T) {
	store := newFakeStore("free")
	completer := &scriptedCompleter{stream: &scriptedStream{
		deltas:   []string{"you are ", "not alone"},
		finalErr: errors.New("connection reset"),
	}}
	turns := testTurns(store, completer, nil)

	result, err := turns.Run(context.Background(), uuid.New(), "feeling low", nil)
	if err != nil {
		t.Fatalf("mid-stream failure must degrade, not fail the turn: %v", err)
	}
	if result.AIMessage.Text != "you are not alone" {
		t.Errorf("expected partial text kept, got %q", result.AIMessage.Text)
	}
	if !result.Partial {
		t.Error("expected partial result")
	}
}

func TestRun_CancelAfterNDeltasFinalizesPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newFakeStore("free")
	s := &scriptedStream{deltas: []string{"one ", "two ", "three"}}
	s.afterDelta = func(i int) {
		if i == 2 {
			cancel()
			s.finalErr = ctx.Err()
			s.deltas = s.deltas[:2]
		}
	}
	turns := testTurns(store, &scriptedCompleter{stream: s}, nil)

	result, err := turns.Run(ctx, uuid.New(), "hello", nil)
	if err != nil {
		t.Fatalf("cancellation must degrade, not fail the turn: %v", err)
	}
	if !result.Partial {
		t.Error("expected partial result after cancel")
	}
	if result.AIMessage.Text != "one two " {
		t.Errorf("expected first two deltas finalized, got %q", result.AIMessage.Text)
	}
	if IsTempID(result.AIMessage.ID) {
		t.Error("partial reply must still be finalized with a permanent id")
	}

	// Persisted despite the cancelled context.
	stored := store.messages[result.Chat.ID]
	if len(stored) != 2 || stored[1].Text != "one two " {
		t.Errorf("partial reply not persisted: %+v", stored)
	}
}

func TestRun_AIPersistFailureSurfaces(t *testing.T) {
	store := newFakeStore("free")
	store.insertErr = errors.New("write failed")
	completer := &scriptedCompleter{stream: &scriptedStream{deltas: []string{"reply"}}}
	turns := testTurns(store, completer, nil)

	result, err := turns.Run(context.Background(), uuid.New(), "hello", nil)
	if err == nil {
		t.Fatal("expected store write error to surface")
	}
	if result == nil || result.UserMessage.Text != "hello" {
		t.Error("user message result must survive the write failure")
	}
}

func TestRun_HistoryRespectsMemoryWindow(t *testing.T) {
	store := newFakeStore("free")
	userID := uuid.New()
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	// Each day is its own chat, so in-window history lives in chats other
	// than today's. Seed yesterday's conversation and an ancient one.
	yesterday, _ := store.CreateChat(context.Background(), userID, now.AddDate(0, 0, -1))
	store.messages[yesterday.ID] = []Message{
		{ID: "y1", ChatID: yesterday.ID, Sender: SenderUser, Text: "fresh", CreatedAt: now.AddDate(0, 0, -1)},
		{ID: "y2", ChatID: yesterday.ID, Sender: SenderAI, Text: "fresh reply", CreatedAt: now.AddDate(0, 0, -1).Add(time.Minute)},
	}
	ancient, _ := store.CreateChat(context.Background(), userID, now.AddDate(0, 0, -30))
	store.messages[ancient.ID] = []Message{
		{ID: "a1", ChatID: ancient.ID, Sender: SenderUser, Text: "ancient", CreatedAt: now.AddDate(0, 0, -30)},
	}

	completer := &scriptedCompleter{stream: &scriptedStream{deltas: []string{"ok"}}}
	turns := testTurns(store, completer, nil)

	if _, err := turns.Run(context.Background(), userID, "today", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawFresh, sawReply, sawToday bool
	for _, m := range completer.got {
		switch m.Content {
		case "ancient":
			t.Error("stale message leaked past the memory window")
		case "fresh":
			sawFresh = true
		case "fresh reply":
			sawReply = true
		case "today":
			sawToday = true
		}
	}
	if !sawFresh || !sawReply {
		t.Errorf("prior-day conversation missing from prompt history: user=%v ai=%v", sawFresh, sawReply)
	}
	if !sawToday {
		t.Error("current message missing from prompt history")
	}
}
