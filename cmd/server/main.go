package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tokendesk/internal/adapters/eventbus"
	"tokendesk/internal/adapters/httpserver"
	"tokendesk/internal/adapters/natsbridge"
	"tokendesk/internal/adapters/postgres"
	"tokendesk/internal/adapters/security"
	"tokendesk/internal/adapters/telegram"
	"tokendesk/internal/core/governance"
	"tokendesk/internal/core/kyc"
	"tokendesk/internal/shared/config"
	"tokendesk/internal/shared/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	isDevMode := cfg.AppEnv == "dev"
	baseLogger := logger.New(isDevMode)
	baseLogger.Info().Str("app_env", cfg.AppEnv).Msg("Configuration loaded")

	keyBytes, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to decode ENCRYPTION_KEY. It must be hex-encoded.")
	}
	secSvc, err := security.NewAESService(keyBytes, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize security service")
	}

	verifier, err := httpserver.NewSignatureVerifier(cfg.WebhookSecret)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize webhook signature verifier")
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.DatabaseURL, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to parse REDIS_URL")
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	bus := eventbus.NewInMemoryBus(&baseLogger)

	proposalRepo := postgres.NewProposalRepository(db, &baseLogger)
	verificationRepo := postgres.NewVerificationRepository(db, &baseLogger)
	auditRepo := postgres.NewAuditRepository(db, &baseLogger)
	balances := postgres.NewBalanceRepository(db, &baseLogger)

	govSvc := governance.NewService(proposalRepo, balances, bus, &baseLogger)
	kycSvc := kyc.NewService(verificationRepo, auditRepo, secSvc, bus,
		kyc.Policy{RequireDocuments: cfg.RequireDocuments}, &baseLogger)

	if cfg.NATSURL != "" {
		bridge, err := natsbridge.NewPublisher(cfg.NATSURL, &baseLogger)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to connect NATS bridge")
		}
		defer bridge.Close()
		bridge.Attach(bus)
	}

	if cfg.TelegramToken != "" && cfg.TelegramAdminChat != 0 {
		notifier, err := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramAdminChat, &baseLogger)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to initialize Telegram notifier")
		}
		telegram.Attach(bus, notifier, &baseLogger)
	}

	router := httpserver.NewRouter(httpserver.Deps{
		Governance:   govSvc,
		KYC:          kycSvc,
		Verifier:     verifier,
		Redis:        rdb,
		JWTSecret:    []byte(cfg.JWTSecret),
		AllowOrigins: []string{"http://localhost:3000"},
		RateLimit:    cfg.RateLimit,
		RateWindow:   time.Duration(cfg.RateWindowSeconds) * time.Second,
		Logger:       &baseLogger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		baseLogger.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	baseLogger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
