package checkin

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/store"
)

// Store is the persistence the scheduler reads and writes.
type Store interface {
	ListCheckinCandidates(ctx context.Context) ([]store.Profile, error)
	CountCheckinSendsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	CountUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	RecordCheckinSend(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// PushSender delivers one notification.
type PushSender interface {
	Send(ctx context.Context, userID, message string) error
}

// Publisher emits events onto the bus; nil is allowed.
type Publisher interface {
	Publish(subject string, data any) error
}

// Scheduler sweeps enabled profiles on an interval and nudges the eligible
// ones.
type Scheduler struct {
	store    Store
	sender   PushSender
	bus      Publisher
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(s Store, sender PushSender, bus Publisher, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		sender:   sender,
		bus:      bus,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("check-in scheduler running", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("check-in scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep evaluates every enabled profile once. Per-user failures are logged
// and skipped; one bad profile never stalls the rest.
func (s *Scheduler) Sweep(ctx context.Context) {
	candidates, err := s.store.ListCheckinCandidates(ctx)
	if err != nil {
		s.logger.Error("failed to list check-in candidates", "error", err)
		return
	}

	now := s.now()
	sent := 0
	for _, p := range candidates {
		ok, reason := s.evaluate(ctx, p, now)
		if !ok {
			if reason != "" {
				s.logger.Debug("check-in skipped", "user_id", p.UserID, "reason", reason)
			}
			continue
		}

		if err := s.sender.Send(ctx, p.UserID.String(), Nudge(now)); err != nil {
			s.logger.Warn("check-in send failed", "user_id", p.UserID, "error", err)
			continue
		}
		if err := s.store.RecordCheckinSend(ctx, p.UserID, now); err != nil {
			s.logger.Error("failed to record check-in send", "user_id", p.UserID, "error", err)
			continue
		}
		s.publish(p.UserID)
		sent++
	}

	if sent > 0 {
		s.logger.Info("check-in sweep complete", "candidates", len(candidates), "sent", sent)
	}
}

func (s *Scheduler) evaluate(ctx context.Context, p store.Profile, now time.Time) (bool, string) {
	sentThisWeek, err := s.store.CountCheckinSendsSince(ctx, p.UserID, now.Add(-7*24*time.Hour))
	if err != nil {
		s.logger.Warn("failed to count sends", "user_id", p.UserID, "error", err)
		return false, ""
	}
	recent, err := s.store.CountUserMessagesSince(ctx, p.UserID, now.Add(-ActivityWindow))
	if err != nil {
		s.logger.Warn("failed to count recent messages", "user_id", p.UserID, "error", err)
		return false, ""
	}
	return Eligible(p.CheckinsEnabled, p.LastCheckinAt, sentThisWeek, recent, now)
}

func (s *Scheduler) publish(userID uuid.UUID) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish("safespace.checkin.sent", map[string]any{
		"user_id":   userID.String(),
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Warn("failed to publish check-in event", "error", err)
	}
}
