package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Highlight is a half-open character range [StartIndex, EndIndex) over a
// message's text. Overlapping highlights on the same message are permitted.
type Highlight struct {
	ID         uuid.UUID `json:"id"`
	MessageID  uuid.UUID `json:"message_id"`
	UserID     uuid.UUID `json:"user_id"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidRange reports whether a highlight range is structurally sane. Overlap
// with other highlights is deliberately not checked.
func ValidRange(start, end int) bool {
	return start >= 0 && end > start
}

// CreateHighlight records a highlight over a message.
func (s *Store) CreateHighlight(ctx context.Context, messageID, userID uuid.UUID, start, end int) (*Highlight, error) {
	if !ValidRange(start, end) {
		return nil, fmt.Errorf("invalid highlight range [%d, %d)", start, end)
	}

	h := &Highlight{
		ID:         uuid.New(),
		MessageID:  messageID,
		UserID:     userID,
		StartIndex: start,
		EndIndex:   end,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO highlights (id, message_id, user_id, start_index, end_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.MessageID, h.UserID, h.StartIndex, h.EndIndex, h.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert highlight: %w", err)
	}
	return h, nil
}

// DeleteHighlight removes a highlight, scoped to its owner.
func (s *Store) DeleteHighlight(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM highlights WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("highlight %s not found", id)
	}
	return nil
}

// ListHighlights returns all highlights on a message.
func (s *Store) ListHighlights(ctx context.Context, messageID uuid.UUID) ([]Highlight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, user_id, start_index, end_index, created_at
		FROM highlights WHERE message_id = $1
		ORDER BY start_index ASC, created_at ASC`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer rows.Close()

	var highlights []Highlight
	for rows.Next() {
		var h Highlight
		if err := rows.Scan(&h.ID, &h.MessageID, &h.UserID, &h.StartIndex, &h.EndIndex, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}
