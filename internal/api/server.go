package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/billing"
	"github.com/avoquity/gentlee-safespace-sub000/internal/chat"
	"github.com/avoquity/gentlee-safespace-sub000/internal/llm"
	"github.com/avoquity/gentlee-safespace-sub000/internal/settings"
	"github.com/avoquity/gentlee-safespace-sub000/internal/store"
	"github.com/avoquity/gentlee-safespace-sub000/internal/stream"
)

// ChatService runs one conversation turn, emitting stream events as the reply
// arrives.
type ChatService interface {
	Run(ctx context.Context, userID uuid.UUID, text string, emit func(stream.Event)) (*chat.TurnResult, error)
}

// Summarizer produces a conversation summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.HistoryMessage) (string, error)
}

// Checkout opens hosted checkout sessions.
type Checkout interface {
	CreateSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
}

// WebhookProcessor verifies and applies billing webhook events.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) error
}

// Publisher emits events onto the bus. A nil Publisher is allowed.
type Publisher interface {
	Publish(subject string, data any) error
}

// Store is the persistence surface the resource routes read and write.
type Store interface {
	FindChatInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) (*chat.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]chat.Message, error)
	InsertMessage(ctx context.Context, chatID uuid.UUID, sender, text string, at time.Time) (chat.Message, error)
	SetChatSummary(ctx context.Context, chatID uuid.UUID, summary string) error
	CreateHighlight(ctx context.Context, messageID, userID uuid.UUID, start, end int) (*store.Highlight, error)
	DeleteHighlight(ctx context.Context, id, userID uuid.UUID) error
	ListHighlights(ctx context.Context, messageID uuid.UUID) ([]store.Highlight, error)
}

type Server struct {
	router     *chi.Mux
	port       int
	apiToken   string
	turns      ChatService
	summarizer Summarizer
	checkout   Checkout
	webhook    WebhookProcessor
	store      Store
	settings   *settings.Manager
	bus        Publisher
	logger     *slog.Logger
}

func NewServer(port int, apiToken string, turns ChatService, summarizer Summarizer, checkout Checkout, webhook WebhookProcessor, st Store, prefs *settings.Manager, bus Publisher, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:     router,
		port:       port,
		apiToken:   apiToken,
		turns:      turns,
		summarizer: summarizer,
		checkout:   checkout,
		webhook:    webhook,
		store:      st,
		settings:   prefs,
		bus:        bus,
		logger:     logger,
	}

	router.Get("/health", s.health)

	router.Route("/functions/v1", func(r chi.Router) {
		// The webhook authenticates by provider signature, not bearer token.
		r.Post("/billing-webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.bearerAuth)
			r.Post("/chat-completion", s.handleChatCompletion)
			r.Post("/summarize", s.handleSummarize)
			r.Post("/create-checkout-session", s.handleCreateCheckout)
		})
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/chats", s.listChats)
		r.Get("/chats/today", s.todayChat)
		r.Get("/chats/{chatID}/messages", s.listMessages)
		r.Post("/chats/{chatID}/messages", s.postMessage)
		r.Post("/highlights", s.createHighlight)
		r.Delete("/highlights/{highlightID}", s.deleteHighlight)
		r.Get("/messages/{messageID}/highlights", s.listHighlights)
		r.Get("/settings/{userID}", s.getSettings)
		r.Put("/settings/{userID}", s.putSettings)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.apiToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
