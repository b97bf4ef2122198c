package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avoquity/gentlee-safespace-sub000/internal/api"
	"github.com/avoquity/gentlee-safespace-sub000/internal/billing"
	"github.com/avoquity/gentlee-safespace-sub000/internal/chat"
	"github.com/avoquity/gentlee-safespace-sub000/internal/checkin"
	"github.com/avoquity/gentlee-safespace-sub000/internal/config"
	"github.com/avoquity/gentlee-safespace-sub000/internal/events"
	"github.com/avoquity/gentlee-safespace-sub000/internal/llm"
	"github.com/avoquity/gentlee-safespace-sub000/internal/settings"
	"github.com/avoquity/gentlee-safespace-sub000/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("safespace starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Completion provider
	if cfg.CompletionAPIKey == "" {
		slog.Error("COMPLETION_API_KEY is required")
		os.Exit(1)
	}
	provider := llm.NewClient(cfg.CompletionAPIKey, cfg.CompletionModel, cfg.CompletionBaseURL)
	slog.Info("completion client ready", "model", cfg.CompletionModel)

	// Event bus
	bus, err := events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Conversation turns
	memoryWindow := time.Duration(cfg.MemoryWindowDays) * 24 * time.Hour
	turns := chat.NewTurns(db, chat.ProviderStreamer{Client: provider}, bus, memoryWindow, cfg.FreeMessageCap, slog.Default())

	// Summarize the previous day's conversation when a new day's chat opens
	autoSummary := chat.NewAutoSummary(db, provider, slog.Default())
	if err := bus.Subscribe(events.SubjectChatCreated, autoSummary.HandleChatCreated); err != nil {
		slog.Error("failed to subscribe to chat events", "error", err)
		os.Exit(1)
	}

	// Billing
	checkout := billing.NewCheckoutClient(cfg.BillingSecretKey, cfg.CheckoutURL, cfg.AppBaseURL, slog.Default())
	webhook := billing.NewWebhook(cfg.WebhookSecret, db, bus, slog.Default())

	// Check-in sweeps (optional, needs push credentials)
	if cfg.PushAPIKey != "" && cfg.PushAppID != "" {
		sender := checkin.NewSender(cfg.PushAPIKey, cfg.PushAppID, slog.Default())
		sched := checkin.NewScheduler(db, sender, bus, time.Duration(cfg.CheckinSweepMins)*time.Minute, slog.Default())
		go sched.Run(ctx)
		slog.Info("check-in scheduler running", "interval_minutes", cfg.CheckinSweepMins)
	} else {
		slog.Warn("push not configured, check-in nudges disabled")
	}

	// HTTP API
	prefs := settings.NewManager(db)
	srv := api.NewServer(cfg.Port, cfg.APIToken, turns, provider, checkout, webhook, db, prefs, bus, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("safespace ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("safespace stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
