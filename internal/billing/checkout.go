package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CheckoutClient creates hosted checkout sessions against the payment
// provider. The caller redirects the user to the returned URL; a cancelled
// checkout lands back on the /upgrade route.
type CheckoutClient struct {
	secretKey  string
	apiURL     string
	appBaseURL string
	client     *http.Client
	logger     *slog.Logger
}

func NewCheckoutClient(secretKey, apiURL, appBaseURL string, logger *slog.Logger) *CheckoutClient {
	return &CheckoutClient{
		secretKey:  secretKey,
		apiURL:     apiURL,
		appBaseURL: strings.TrimSuffix(appBaseURL, "/"),
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// CheckoutRequest carries what the provider needs to start a subscription
// checkout for a user.
type CheckoutRequest struct {
	PriceID   string `json:"priceId"`
	UserEmail string `json:"userEmail"`
	Plan      string `json:"plan"`
	UserID    string `json:"userId"`
}

// CheckoutSession is the provider session the client is redirected to.
type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateSession opens a hosted checkout session. User identity and plan ride
// along as metadata so the webhook can attribute the resulting subscription.
func (c *CheckoutClient) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", req.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("customer_email", req.UserEmail)
	form.Set("success_url", c.appBaseURL+"/upgrade/success?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", c.appBaseURL+"/upgrade")
	form.Set("metadata[user_id]", req.UserID)
	form.Set("metadata[plan]", req.Plan)
	form.Set("subscription_data[metadata][user_id]", req.UserID)
	form.Set("subscription_data[metadata][plan]", req.Plan)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider error %d: %s", resp.StatusCode, string(respBody))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	c.logger.Info("checkout session created", "session_id", session.ID, "plan", req.Plan)
	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}
