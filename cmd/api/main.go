package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sergioaranda/forgeline-backend/api/routes"
	"github.com/sergioaranda/forgeline-backend/internal/billing"
	"github.com/sergioaranda/forgeline-backend/internal/projects"
	"github.com/sergioaranda/forgeline-backend/internal/users"
	stripewebhook "github.com/sergioaranda/forgeline-backend/internal/webhooks/stripe"
	"github.com/sergioaranda/forgeline-backend/pkg/config"
	"github.com/sergioaranda/forgeline-backend/pkg/db"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
	"github.com/sergioaranda/forgeline-backend/pkg/metrics"
	"github.com/sergioaranda/forgeline-backend/pkg/migrate"
	"github.com/sergioaranda/forgeline-backend/pkg/outbox"
	"github.com/sergioaranda/forgeline-backend/pkg/pubsub"
	"github.com/sergioaranda/forgeline-backend/pkg/redis"
	"github.com/sergioaranda/forgeline-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	// pubsub is optional for the API; the outbox publisher owns delivery
	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "gcp project id not set, pubsub disabled")
	}

	usersRepo := users.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	projectRepo := projects.NewRepository(dbClient.DB())

	ledger, err := projects.NewLedger(projects.LedgerParams{
		ProjectRepo: projectRepo,
		BillingRepo: billingRepo,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create project ledger", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		UsersRepo:         usersRepo,
		BillingRepo:       billingRepo,
		ProjectLedger:     ledger,
		StripeClient:      billing.NewStripeClient(stripeClient),
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe_webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(promRegistry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			pubsubClient,
			stripeClient,
			webhookService,
			webhookGuard,
			webhookMetrics,
			promRegistry,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}
