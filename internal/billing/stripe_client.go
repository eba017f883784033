package billing

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/charge"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/sergioaranda/forgeline-backend/pkg/stripe"
)

// StripePaymentClient exposes the subset of Stripe operations required to
// enrich payments during reconciliation.
type StripePaymentClient interface {
	GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetCharge(ctx context.Context, id string, params *stripe.ChargeParams) (*stripe.Charge, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the provided Stripe client so callers can be tested.
func NewStripeClient(api *pkgstripe.Client) StripePaymentClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (w *stripeClientWrapper) GetCharge(ctx context.Context, id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	if params == nil {
		params = &stripe.ChargeParams{}
	}
	params.Context = ctx
	return charge.Get(id, params)
}
