package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port              int
	DatabaseURL       string
	NatsURL           string
	NatsToken         string
	LogLevel          string
	CompletionAPIKey  string
	CompletionModel   string
	CompletionBaseURL string
	BillingSecretKey  string
	WebhookSecret     string
	CheckoutURL       string
	AppBaseURL        string
	PushAPIKey        string
	PushAppID         string
	APIToken          string
	MemoryWindowDays  int
	FreeMessageCap    int
	CheckinSweepMins  int
}

func Load() Config {
	return Config{
		Port:              envInt("SAFESPACE_PORT", 8620),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		NatsURL:           envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:         envStr("NATS_TOKEN", ""),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		CompletionAPIKey:  envStr("COMPLETION_API_KEY", ""),
		CompletionModel:   envStr("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionBaseURL: envStr("COMPLETION_BASE_URL", "https://api.openai.com/v1"),
		BillingSecretKey:  envStr("BILLING_SECRET_KEY", ""),
		WebhookSecret:     envStr("BILLING_WEBHOOK_SECRET", ""),
		CheckoutURL:       envStr("BILLING_CHECKOUT_URL", "https://api.stripe.com/v1/checkout/sessions"),
		AppBaseURL:        envStr("APP_BASE_URL", "https://app.gentlee.example"),
		PushAPIKey:        envStr("PUSH_API_KEY", ""),
		PushAppID:         envStr("PUSH_APP_ID", ""),
		APIToken:          envStr("SAFESPACE_API_TOKEN", ""),
		MemoryWindowDays:  envInt("MEMORY_WINDOW_DAYS", 14),
		FreeMessageCap:    envInt("FREE_MESSAGE_CAP", 20),
		CheckinSweepMins:  envInt("CHECKIN_SWEEP_MINUTES", 60),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
