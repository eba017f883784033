package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sergioaranda/forgeline-backend/api/controllers"
	webhookcontrollers "github.com/sergioaranda/forgeline-backend/api/controllers/webhooks"
	"github.com/sergioaranda/forgeline-backend/api/middleware"
	stripewebhook "github.com/sergioaranda/forgeline-backend/internal/webhooks/stripe"
	"github.com/sergioaranda/forgeline-backend/pkg/config"
	"github.com/sergioaranda/forgeline-backend/pkg/db"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
	"github.com/sergioaranda/forgeline-backend/pkg/metrics"
	"github.com/sergioaranda/forgeline-backend/pkg/pubsub"
	"github.com/sergioaranda/forgeline-backend/pkg/redis"
	"github.com/sergioaranda/forgeline-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	webhookMetrics *metrics.WebhookMetrics,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient, pubsubClient))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, webhookMetrics, logg))
	})

	return r
}
