package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultPushURL = "https://onesignal.com/api/v1/notifications"

// nudges rotate by day so repeat recipients do not see the same line twice in
// a row.
var nudges = []string{
	"A quiet moment for you. How are you feeling today?",
	"Gentlee here. Whatever today held, there's space for it.",
	"Checking in gently. Want to put today into words?",
	"No pressure, just a soft hello. How's your heart?",
}

// Sender delivers check-in pushes through the notification provider.
type Sender struct {
	apiKey string
	appID  string
	apiURL string
	client *http.Client
	logger *slog.Logger
}

func NewSender(apiKey, appID string, logger *slog.Logger) *Sender {
	return &Sender{
		apiKey: apiKey,
		appID:  appID,
		apiURL: defaultPushURL,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Nudge picks the rotation entry for a given day.
func Nudge(day time.Time) string {
	return nudges[day.YearDay()%len(nudges)]
}

// Send pushes one check-in notification to a user.
func (s *Sender) Send(ctx context.Context, userID, message string) error {
	body, err := json.Marshal(map[string]any{
		"app_id":                    s.appID,
		"include_external_user_ids": []string{userID},
		"headings":                  map[string]string{"en": "Gentlee"},
		"contents":                  map[string]string{"en": message},
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push provider error %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Info("check-in push sent", "user_id", userID)
	return nil
}
