package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Chat is the per-user per-day grouping of messages.
type Chat struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	Theme       string    `json:"theme,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// ConversationStore is the conversation persistence the resolver needs.
type ConversationStore interface {
	// FindChatInRange returns the newest chat owned by userID created within
	// [start, end), or nil when none exists.
	FindChatInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Chat, error)
	CreateChat(ctx context.Context, userID uuid.UUID, createdAt time.Time) (*Chat, error)
}

// TodayUpserter is the optional hardened creation path: an atomic
// find-or-create keyed on (user, day) that concurrent callers converge on.
type TodayUpserter interface {
	UpsertTodayChat(ctx context.Context, userID uuid.UUID, now time.Time) (*Chat, error)
}

// Resolver finds or creates the user's conversation for the current local
// calendar day.
//
// Against a plain ConversationStore this is a read-then-maybe-write sequence
// with no mutual exclusion: two near-simultaneous calls can each observe no
// chat and each create one, leaving two conversations for the same day. A
// store that also implements TodayUpserter closes that window; creation then
// goes through the upsert and racing callers get the same row.
type Resolver struct {
	store ConversationStore
	now   func() time.Time
}

func NewResolver(store ConversationStore) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// ResolveToday returns today's chat for the user, creating one if none exists.
// "Today" is bounded by the local calendar day of the resolver's clock.
func (r *Resolver) ResolveToday(ctx context.Context, userID uuid.UUID) (*Chat, bool, error) {
	now := r.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.Add(24 * time.Hour)

	existing, err := r.store.FindChatInRange(ctx, userID, start, end)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if u, ok := r.store.(TodayUpserter); ok {
		upserted, err := u.UpsertTodayChat(ctx, userID, now)
		if err != nil {
			return nil, false, err
		}
		return upserted, true, nil
	}

	created, err := r.store.CreateChat(ctx, userID, now)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}
