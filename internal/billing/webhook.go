package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// signatureTolerance bounds how old a signed webhook may be before it is
// rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

var (
	ErrBadSignature = errors.New("webhook signature verification failed")
	ErrStaleEvent   = errors.New("webhook timestamp outside tolerance")
)

// SubscriptionStore is the slice of the store the webhook mutates.
type SubscriptionStore interface {
	UpdateSubscription(ctx context.Context, userID uuid.UUID, plan, subscriptionID, status string, periodEnd time.Time) error
	ClearSubscription(ctx context.Context, userID uuid.UUID) error
}

// Publisher emits events onto the bus; nil is allowed.
type Publisher interface {
	Publish(subject string, data any) error
}

// Webhook verifies and applies billing events to profile subscription state.
type Webhook struct {
	secret string
	store  SubscriptionStore
	bus    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewWebhook(secret string, store SubscriptionStore, bus Publisher, logger *slog.Logger) *Webhook {
	return &Webhook{secret: secret, store: store, bus: bus, logger: logger, now: time.Now}
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID               string            `json:"id"`
	Subscription     string            `json:"subscription"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

// Process verifies the provider signature over the raw payload and applies
// the event. Unknown event types are acknowledged and ignored.
func (w *Webhook) Process(ctx context.Context, payload []byte, sigHeader string) error {
	if err := verifySignature(payload, sigHeader, w.secret, w.now()); err != nil {
		return err
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("parse webhook event: %w", err)
	}

	switch evt.Type {
	case "checkout.session.completed", "invoice.payment_succeeded", "customer.subscription.updated":
		return w.applySubscription(ctx, evt)
	case "customer.subscription.deleted":
		return w.removeSubscription(ctx, evt)
	default:
		w.logger.Debug("ignoring webhook event", "type", evt.Type)
		return nil
	}
}

func (w *Webhook) applySubscription(ctx context.Context, evt webhookEvent) error {
	obj := evt.Data.Object
	userID, err := objectUser(obj)
	if err != nil {
		return err
	}

	subscriptionID := obj.Subscription
	if subscriptionID == "" {
		// On subscription objects the id is the subscription itself.
		subscriptionID = obj.ID
	}
	status := obj.Status
	if status == "" {
		status = "active"
	}
	var periodEnd time.Time
	if obj.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(obj.CurrentPeriodEnd, 0).UTC()
	}

	plan := obj.Metadata["plan"]
	if plan == "" {
		plan = "monthly"
	}

	if err := w.store.UpdateSubscription(ctx, userID, plan, subscriptionID, status, periodEnd); err != nil {
		return fmt.Errorf("apply %s: %w", evt.Type, err)
	}
	w.logger.Info("subscription updated", "user_id", userID, "plan", plan, "status", status, "event", evt.Type)
	w.publish(userID, plan, status)
	return nil
}

func (w *Webhook) removeSubscription(ctx context.Context, evt webhookEvent) error {
	userID, err := objectUser(evt.Data.Object)
	if err != nil {
		return err
	}
	if err := w.store.ClearSubscription(ctx, userID); err != nil {
		return fmt.Errorf("apply %s: %w", evt.Type, err)
	}
	w.logger.Info("subscription cancelled", "user_id", userID)
	w.publish(userID, "free", "canceled")
	return nil
}

func (w *Webhook) publish(userID uuid.UUID, plan, status string) {
	if w.bus == nil {
		return
	}
	err := w.bus.Publish("safespace.subscription.updated", map[string]any{
		"user_id": userID.String(),
		"plan":    plan,
		"status":  status,
	})
	if err != nil {
		w.logger.Warn("failed to publish subscription event", "error", err)
	}
}

func objectUser(obj eventObject) (uuid.UUID, error) {
	raw := obj.Metadata["user_id"]
	if raw == "" {
		return uuid.Nil, fmt.Errorf("webhook object missing user_id metadata")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user_id metadata: %w", err)
	}
	return userID, nil
}

// verifySignature checks a "t=<unix>,v1=<hex>" header: v1 is the hex HMAC-SHA256
// of "<t>.<payload>" under the shared secret, and t must be within tolerance.
func verifySignature(payload []byte, header, secret string, now time.Time) error {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrBadSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleEvent
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrBadSignature
}

// SignPayload produces a signature header for a payload, used by tests and by
// local webhook replay tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
