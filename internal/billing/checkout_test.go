package billing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSession_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("expected bearer sk_test, got %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("mode") != "subscription" {
			t.Errorf("expected subscription mode, got %q", r.PostForm.Get("mode"))
		}
		if r.PostForm.Get("line_items[0][price]") != "price_123" {
			t.Errorf("unexpected price: %q", r.PostForm.Get("line_items[0][price]"))
		}
		if r.PostForm.Get("customer_email") != "me@example.com" {
			t.Errorf("unexpected email: %q", r.PostForm.Get("customer_email"))
		}
		if r.PostForm.Get("cancel_url") != "https://app.example.com/upgrade" {
			t.Errorf("cancel must return to /upgrade, got %q", r.PostForm.Get("cancel_url"))
		}
		if r.PostForm.Get("metadata[user_id]") == "" {
			t.Error("expected user_id metadata")
		}
		if r.PostForm.Get("subscription_data[metadata][plan]") != "monthly" {
			t.Errorf("expected plan metadata on subscription, got %q", r.PostForm.Get("subscription_data[metadata][plan]"))
		}

		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"id":"cs_123","url":"https://checkout.example.com/cs_123"}`)
	}))
	defer server.Close()

	c := NewCheckoutClient("sk_test", server.URL, "https://app.example.com/", slog.Default())
	session, err := c.CreateSession(context.Background(), CheckoutRequest{
		PriceID:   "price_123",
		UserEmail: "me@example.com",
		Plan:      "monthly",
		UserID:    "5c9f8e7d-0000-0000-0000-000000000001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.SessionID != "cs_123" {
		t.Errorf("unexpected session id: %q", session.SessionID)
	}
	if session.URL != "https://checkout.example.com/cs_123" {
		t.Errorf("unexpected url: %q", session.URL)
	}
}

func TestCreateSession_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"error":{"message":"no such price"}}`)
	}))
	defer server.Close()

	c := NewCheckoutClient("sk_test", server.URL, "https://app.example.com", slog.Default())
	if _, err := c.CreateSession(context.Background(), CheckoutRequest{PriceID: "price_bad"}); err == nil {
		t.Fatal("expected error")
	}
}
