package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/givingops/internal/api"
	"github.com/punchamoorthee/givingops/internal/cache"
	"github.com/punchamoorthee/givingops/internal/config"
	"github.com/punchamoorthee/givingops/internal/donation"
	"github.com/punchamoorthee/givingops/internal/events"
	"github.com/punchamoorthee/givingops/internal/payments"
	"github.com/punchamoorthee/givingops/internal/recommend"
	"github.com/punchamoorthee/givingops/internal/service"
	"github.com/punchamoorthee/givingops/internal/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := store.New(ctx, cfg.DBSource)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	calc, err := donation.NewCalculator(cfg.FeeRate)
	if err != nil {
		return err
	}

	// Initialize Layers
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency)
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout will fail")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; webhooks will be rejected")
	}

	directory := service.NewDirectory(db, directoryCache(ctx, cfg, logger), logger)
	donations := service.NewDonationService(db, gateway, calc, cfg.MinDonationCents, logger)
	reconciler := service.NewReconciler(gateway, db, logger)
	recommender := recommend.NewRecommender(directory, recommend.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel), logger)

	var writer events.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		kw := events.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer kw.Close()
		writer = kw
	} else {
		logger.Warn("KAFKA_BROKERS not set; donation events stay in the outbox")
	}
	poller := events.NewOutboxPoller(db, writer, cfg.PendingSweepAfter, logger)
	go poller.Run(ctx)

	router := api.NewRouter(api.Deps{
		Donations:      donations,
		Webhooks:       reconciler,
		Directory:      directory,
		Recommender:    recommender,
		DB:             db,
		Idempotency:    db,
		AppBaseURL:     cfg.AppBaseURL,
		AllowedOrigins: cfg.AllowedOrigins,
		AdminToken:     cfg.AdminAPIToken,
		CheckoutRPS:    cfg.CheckoutRateLimit,
		CheckoutBurst:  cfg.CheckoutRateBurst,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "giving-api"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func directoryCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) cache.DirectoryCache {
	if cfg.RedisAddr == "" {
		return cache.Noop{}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable; directory cache disabled", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return cache.Noop{}
	}
	return cache.NewRedisCache(client, cfg.DirectoryCacheTTL)
}
