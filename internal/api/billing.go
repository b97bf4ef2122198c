package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/avoquity/gentlee-safespace-sub000/internal/billing"
)

// handleCreateCheckout opens a hosted checkout session and returns the
// redirect target.
func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.PriceID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "priceId and userId are required")
		return
	}

	session, err := s.checkout.CreateSession(r.Context(), req)
	if err != nil {
		s.logger.Error("checkout session creation failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not start checkout")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleWebhook receives signed billing events from the payment provider.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	err = s.webhook.Process(r.Context(), payload, r.Header.Get("Webhook-Signature"))
	switch {
	case errors.Is(err, billing.ErrBadSignature), errors.Is(err, billing.ErrStaleEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
