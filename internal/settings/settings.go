// Package settings holds per-user UI preference state as an explicit object
// with load and save boundaries, rather than ambient flag access scattered
// through the app.
package settings

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Settings are the preferences a user carries across sessions: the remembered
// sign-in email, whether check-in nudges are enabled, and which one-time
// banners have been seen.
type Settings struct {
	RememberedEmail string   `json:"remembered_email,omitempty"`
	CheckinsEnabled bool     `json:"checkins_enabled"`
	BannersSeen     []string `json:"banners_seen,omitempty"`
}

// SeenBanner reports whether the named banner has been dismissed.
func (s Settings) SeenBanner(name string) bool {
	return slices.Contains(s.BannersSeen, name)
}

// MarkBannerSeen records a banner dismissal, idempotently.
func (s *Settings) MarkBannerSeen(name string) {
	if !s.SeenBanner(name) {
		s.BannersSeen = append(s.BannersSeen, name)
	}
}

// Store persists settings per user.
type Store interface {
	LoadSettings(ctx context.Context, userID uuid.UUID) (Settings, error)
	SaveSettings(ctx context.Context, userID uuid.UUID, s Settings) error
}

// Manager wraps a Store with the load-at-startup / save-on-change discipline.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Load fetches the user's settings; a user with no stored row gets zero-value
// defaults.
func (m *Manager) Load(ctx context.Context, userID uuid.UUID) (Settings, error) {
	return m.store.LoadSettings(ctx, userID)
}

// Update applies mutate to the current settings and saves the result in one
// step, so every change passes through the save boundary.
func (m *Manager) Update(ctx context.Context, userID uuid.UUID, mutate func(*Settings)) (Settings, error) {
	s, err := m.store.LoadSettings(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	mutate(&s)
	if err := m.store.SaveSettings(ctx, userID, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
