package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv            string
	HTTPPort          string
	DatabaseURL       string
	RedisURL          string
	NATSURL           string // optional; empty disables the NATS bridge
	JWTSecret         string
	WebhookSecret     string
	EncryptionKey     string
	TelegramToken     string // optional; empty disables the notifier
	TelegramAdminChat int64
	RequireDocuments  bool
	RateLimit         int
	RateWindowSeconds int
}

var bindings = map[string]string{
	"app.env":               "APP_ENV",
	"http.port":             "HTTP_PORT",
	"database.url":          "DATABASE_URL",
	"redis.url":             "REDIS_URL",
	"nats.url":              "NATS_URL",
	"jwt.secret":            "JWT_SECRET",
	"webhook.secret":        "WEBHOOK_SECRET",
	"encryption.key":        "ENCRYPTION_KEY",
	"telegram.token":        "TELEGRAM_TOKEN",
	"telegram.admin_chat":   "TELEGRAM_ADMIN_CHAT",
	"kyc.require_documents": "KYC_REQUIRE_DOCUMENTS",
	"ratelimit.requests":    "RATE_LIMIT",
	"ratelimit.window_sec":  "RATE_WINDOW_SECONDS",
}

// Load loads configuration from a .env file (when present) and the
// process environment, then validates it. The webhook secret is mandatory
// in every environment: a missing secret must fail startup, never
// silently disable signature checking.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("could not bind %s: %w", key, err)
		}
	}

	viper.SetDefault("app.env", "dev")
	viper.SetDefault("http.port", "8080")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("kyc.require_documents", true)
	viper.SetDefault("ratelimit.requests", 30)
	viper.SetDefault("ratelimit.window_sec", 60)

	cfg := Config{
		AppEnv:            viper.GetString("app.env"),
		HTTPPort:          viper.GetString("http.port"),
		DatabaseURL:       viper.GetString("database.url"),
		RedisURL:          viper.GetString("redis.url"),
		NATSURL:           viper.GetString("nats.url"),
		JWTSecret:         viper.GetString("jwt.secret"),
		WebhookSecret:     viper.GetString("webhook.secret"),
		EncryptionKey:     viper.GetString("encryption.key"),
		TelegramToken:     viper.GetString("telegram.token"),
		TelegramAdminChat: viper.GetInt64("telegram.admin_chat"),
		RequireDocuments:  viper.GetBool("kyc.require_documents"),
		RateLimit:         viper.GetInt("ratelimit.requests"),
		RateWindowSeconds: viper.GetInt("ratelimit.window_sec"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set in environment or .env file")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set in environment or .env file")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET is not set in environment or .env file")
	}
	if cfg.EncryptionKey == "" {
		return nil, errors.New("ENCRYPTION_KEY is not set in environment or .env file")
	}
	if len(cfg.EncryptionKey) != 64 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be a 64-character hex string (32 bytes), but got %d chars", len(cfg.EncryptionKey))
	}
	if cfg.RateLimit <= 0 || cfg.RateWindowSeconds <= 0 {
		return nil, errors.New("RATE_LIMIT and RATE_WINDOW_SECONDS must be positive")
	}

	return &cfg, nil
}
