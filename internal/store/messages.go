package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/chat"
)

// InsertMessage persists one message and returns it with its permanent
// identity.
func (s *Store) InsertMessage(ctx context.Context, chatID uuid.UUID, sender, text string, at time.Time) (chat.Message, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, chat_id, sender, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, chatID, sender, text, at,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return chat.Message{ID: id.String(), ChatID: chatID, Sender: sender, Text: text, CreatedAt: at}, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, chatID uuid.UUID) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, sender, text, created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at ASC`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var m chat.Message
		var id uuid.UUID
		if err := rows.Scan(&id, &m.ChatID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = id.String()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListUserMessagesSince returns all of a user's messages across conversations
// from since onward, in chronological order. This is the prompt-history read:
// the memory window spans days, and each day is its own chat row, so history
// has to be keyed on the user rather than a single chat.
func (s *Store) ListUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.chat_id, m.sender, m.text, m.created_at
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE c.user_id = $1 AND m.created_at >= $2
		ORDER BY m.created_at ASC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list user messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var m chat.Message
		var id uuid.UUID
		if err := rows.Scan(&id, &m.ChatID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = id.String()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountUserMessagesSince counts user-sent messages across all of a user's
// conversations from since onward. Used by the plan gate (calendar month) and
// the check-in activity rule (rolling 36h).
func (s *Store) CountUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE c.user_id = $1 AND m.sender = 'user' AND m.created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return count, nil
}
