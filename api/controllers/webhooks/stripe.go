package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/sergioaranda/forgeline-backend/api/responses"
	pkgerrors "github.com/sergioaranda/forgeline-backend/pkg/errors"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
	"github.com/sergioaranda/forgeline-backend/pkg/metrics"
)

// Stripe caps event payloads well below this; anything larger is not Stripe.
const maxWebhookBodyBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies, deduplicates, and dispatches Stripe events.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, webhookMetrics *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			webhookMetrics.IncRejected()
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			webhookMetrics.IncRejected()
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		eventType := string(event.Type)
		if logg != nil {
			ctx = logg.WithStripeEvent(ctx, event.ID, eventType)
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			webhookMetrics.IncDuplicate(eventType)
			responses.WriteSuccess(w, nil)
			return
		}

		start := time.Now()
		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(ctx, event.ID)
			webhookMetrics.IncFailed(eventType)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		webhookMetrics.ObserveDuration(eventType, time.Since(start))
		webhookMetrics.IncProcessed(eventType)

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}
