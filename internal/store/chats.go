package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/avoquity/gentlee-safespace-sub000/internal/chat"
)

// FindChatInRange returns the newest chat owned by userID with a creation
// timestamp in [start, end), or nil when none exists.
func (s *Store) FindChatInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) (*chat.Chat, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, created_at, theme, summary, last_updated
		FROM chats
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, start, end,
	)

	c, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find chat in range: %w", err)
	}
	return c, nil
}

// CreateChat inserts a new conversation for the user.
func (s *Store) CreateChat(ctx context.Context, userID uuid.UUID, createdAt time.Time) (*chat.Chat, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chats (id, user_id, created_at, chat_day, last_updated)
		VALUES ($1, $2, $3, $4, $3)`,
		id, userID, createdAt, localDay(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	return &chat.Chat{ID: id, UserID: userID, CreatedAt: createdAt, LastUpdated: createdAt}, nil
}

// UpsertTodayChat is the hardened find-or-create: the unique (user_id,
// chat_day) index makes concurrent callers converge on a single row instead
// of racing read-then-write.
func (s *Store) UpsertTodayChat(ctx context.Context, userID uuid.UUID, now time.Time) (*chat.Chat, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chats (id, user_id, created_at, chat_day, last_updated)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (user_id, chat_day)
		DO UPDATE SET last_updated = EXCLUDED.last_updated
		RETURNING id, user_id, created_at, theme, summary, last_updated`,
		uuid.New(), userID, now, localDay(now),
	)

	c, err := scanChat(row)
	if err != nil {
		return nil, fmt.Errorf("upsert today chat: %w", err)
	}
	return c, nil
}

// GetChat fetches a conversation by id.
func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*chat.Chat, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, created_at, theme, summary, last_updated
		FROM chats WHERE id = $1`, id,
	)
	c, err := scanChat(row)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

// ListChats returns all of a user's conversations, newest first.
func (s *Store) ListChats(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, created_at, theme, summary, last_updated
		FROM chats WHERE user_id = $1
		ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// SetChatTheme records the identified theme on a conversation.
func (s *Store) SetChatTheme(ctx context.Context, chatID uuid.UUID, theme string) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET theme = $1 WHERE id = $2`, theme, chatID)
	return err
}

// SetChatSummary records the generated summary on a conversation.
func (s *Store) SetChatSummary(ctx context.Context, chatID uuid.UUID, summary string) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET summary = $1 WHERE id = $2`, summary, chatID)
	return err
}

// TouchChat bumps last_updated after a turn completes.
func (s *Store) TouchChat(ctx context.Context, chatID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET last_updated = $1 WHERE id = $2`, at, chatID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*chat.Chat, error) {
	var c chat.Chat
	var theme, summary *string
	if err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt, &theme, &summary, &c.LastUpdated); err != nil {
		return nil, err
	}
	if theme != nil {
		c.Theme = *theme
	}
	if summary != nil {
		c.Summary = *summary
	}
	return &c, nil
}

// localDay truncates a timestamp to its calendar date in its own location.
func localDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
