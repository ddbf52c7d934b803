package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/config"
	poshttp "github.com/jorgegrios/sistemaPOS-sub000/internal/http"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/cashier"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/orders"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/providers/nexipay"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/providers/stripe"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/providers/swiftqr"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/providers/walletpay"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if cfg.DBDSN == "" {
		logger.Error("DB_DSN is required")
		os.Exit(1)
	}

	db, err := gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}

	var ledger payments.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		ledger = payments.NewRedisIdempotencyStore(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set; idempotency ledger is in-process only")
		ledger = payments.NewMemoryIdempotencyStore()
	}

	registry := payments.NewRegistry()
	if cfg.Stripe.APIKey != "" {
		registry.Register(stripe.New(cfg.Stripe.APIKey, cfg.Stripe.WebhookSecret))
	}
	if cfg.Nexipay.APIKey != "" {
		registry.Register(nexipay.New(cfg.Nexipay.BaseURL, cfg.Nexipay.APIKey,
			cfg.Nexipay.WebhookSecret, cfg.Nexipay.NotificationURL))
	}
	if cfg.SwiftQR.APIKey != "" {
		registry.Register(swiftqr.New(cfg.SwiftQR.BaseURL, cfg.SwiftQR.APIKey, cfg.SwiftQR.WebhookSecret))
	}
	if cfg.Walletpay.ClientID != "" {
		registry.Register(walletpay.New(cfg.Walletpay.BaseURL, cfg.Walletpay.ClientID,
			cfg.Walletpay.ClientSecret, cfg.Walletpay.WebhookID))
		logger.Warn("walletpay webhook verification runs in reduced mode (webhook-id match only)")
	}
	logger.Info("payment providers registered", "providers", registry.Names())

	orderSvc := orders.NewService(db)
	cashSvc := cashier.NewService(db)

	paymentSvc := payments.NewService(db, registry, ledger, orderSvc)
	paymentSvc.SetLogger(logger)
	paymentSvc.SetCashier(cashSvc)
	paymentSvc.SetRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay)
	paymentSvc.SetChargeTimeout(cfg.ChargeTimeout)
	paymentSvc.SetIdempotencyTTL(cfg.IdempotencyTTL)

	refundSvc := payments.NewRefundService(db, registry, orderSvc)
	refundSvc.SetLogger(logger)
	refundSvc.SetRefundTimeout(cfg.ChargeTimeout)

	webhookSvc := payments.NewWebhookService(db, orderSvc)
	webhookSvc.SetLogger(logger)

	router := poshttp.NewRouter(poshttp.RouterDeps{
		Logger:   logger,
		Payments: paymentSvc,
		Refunds:  refundSvc,
		Webhooks: webhookSvc,
		Registry: registry,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown did not finish cleanly", "err", err)
	}
	logger.Info("stopped")
}
