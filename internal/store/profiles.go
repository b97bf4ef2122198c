package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/avoquity/gentlee-safespace-sub000/internal/settings"
)

// Profile is the per-user row carrying subscription state and preferences.
type Profile struct {
	UserID             uuid.UUID
	Email              string
	Plan               string
	SubscriptionID     string
	SubscriptionStatus string
	CurrentPeriodEnd   *time.Time
	CheckinsEnabled    bool
	LastCheckinAt      *time.Time
}

// GetProfile fetches a user's profile.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, COALESCE(plan, 'free'), COALESCE(subscription_id, ''),
		       COALESCE(subscription_status, ''), current_period_end,
		       checkins_enabled, last_checkin_at
		FROM profiles WHERE user_id = $1`, userID,
	)

	var p Profile
	err := row.Scan(&p.UserID, &p.Email, &p.Plan, &p.SubscriptionID,
		&p.SubscriptionStatus, &p.CurrentPeriodEnd, &p.CheckinsEnabled, &p.LastCheckinAt)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// UserPlan returns the user's billing plan; users without a profile row are
// on the free plan.
func (s *Store) UserPlan(ctx context.Context, userID uuid.UUID) (string, error) {
	var plan string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(plan, 'free') FROM profiles WHERE user_id = $1`, userID,
	).Scan(&plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return "free", nil
	}
	if err != nil {
		return "", fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// UpdateSubscription records a billing event outcome on the profile.
func (s *Store) UpdateSubscription(ctx context.Context, userID uuid.UUID, plan, subscriptionID, status string, periodEnd time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET plan = $1, subscription_id = $2, subscription_status = $3, current_period_end = $4
		WHERE user_id = $5`,
		plan, subscriptionID, status, periodEnd, userID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// ClearSubscription reverts a user to the free plan after cancellation.
func (s *Store) ClearSubscription(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET plan = 'free', subscription_id = NULL, subscription_status = 'canceled', current_period_end = NULL
		WHERE user_id = $1`, userID,
	)
	if err != nil {
		return fmt.Errorf("clear subscription: %w", err)
	}
	return nil
}

// ListCheckinCandidates returns profiles with check-ins enabled.
func (s *Store) ListCheckinCandidates(ctx context.Context) ([]Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, email, COALESCE(plan, 'free'), COALESCE(subscription_id, ''),
		       COALESCE(subscription_status, ''), current_period_end,
		       checkins_enabled, last_checkin_at
		FROM profiles WHERE checkins_enabled = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("list check-in candidates: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.UserID, &p.Email, &p.Plan, &p.SubscriptionID,
			&p.SubscriptionStatus, &p.CurrentPeriodEnd, &p.CheckinsEnabled, &p.LastCheckinAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// RecordCheckinSend logs one check-in push and stamps the profile.
func (s *Store) RecordCheckinSend(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO checkin_sends (id, user_id, sent_at) VALUES ($1, $2, $3)`,
		uuid.New(), userID, at,
	); err != nil {
		return fmt.Errorf("insert check-in send: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE profiles SET last_checkin_at = $1 WHERE user_id = $2`, at, userID,
	); err != nil {
		return fmt.Errorf("stamp profile: %w", err)
	}
	return tx.Commit(ctx)
}

// CountCheckinSendsSince counts check-in pushes to a user from since onward.
func (s *Store) CountCheckinSendsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM checkin_sends WHERE user_id = $1 AND sent_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count check-in sends: %w", err)
	}
	return count, nil
}

// LoadSettings reads a user's preference columns; a missing row yields
// defaults.
func (s *Store) LoadSettings(ctx context.Context, userID uuid.UUID) (settings.Settings, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(remembered_email, ''), checkins_enabled, COALESCE(banners_seen, '{}')
		FROM profiles WHERE user_id = $1`, userID,
	)

	var out settings.Settings
	err := row.Scan(&out.RememberedEmail, &out.CheckinsEnabled, &out.BannersSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return settings.Settings{}, nil
	}
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return out, nil
}

// SaveSettings writes a user's preference columns.
func (s *Store) SaveSettings(ctx context.Context, userID uuid.UUID, in settings.Settings) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET remembered_email = $1, checkins_enabled = $2, banners_seen = $3
		WHERE user_id = $4`,
		in.RememberedEmail, in.CheckinsEnabled, in.BannersSeen, userID,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
