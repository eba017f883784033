package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/internal/billing"
	"github.com/sergioaranda/forgeline-backend/internal/projects"
	"github.com/sergioaranda/forgeline-backend/internal/users"
	pkgdb "github.com/sergioaranda/forgeline-backend/pkg/db"
	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
	pkgerrors "github.com/sergioaranda/forgeline-backend/pkg/errors"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
	"github.com/sergioaranda/forgeline-backend/pkg/outbox"
)

const projectIDMetadataKey = "project_id"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	UsersRepo         users.Repository
	BillingRepo       billing.Repository
	ProjectLedger     *projects.Ledger
	StripeClient      billing.StripePaymentClient
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service reconciles Stripe events into local billing state. Every handler is
// an upsert keyed by the Stripe object ID so redelivered events settle into the
// same rows.
type Service struct {
	usersRepo   users.Repository
	billingRepo billing.Repository
	ledger      *projects.Ledger
	stripe      billing.StripePaymentClient
	outbox      *outbox.Service
	txRunner    txRunner
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.UsersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.ProjectLedger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "project ledger required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		usersRepo:   params.UsersRepo,
		billingRepo: params.BillingRepo,
		ledger:      params.ProjectLedger,
		stripe:      params.StripeClient,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
	}, nil
}

// HandleEvent dispatches a verified Stripe event. Event types outside the
// handled set are acknowledged without side effects so new upstream event
// types never cause retry storms.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		return s.handleCheckoutCompleted(ctx, event, &session)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, event, &stripeSub)
	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		var stripeInv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &stripeInv); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
		}
		succeeded := event.Type == stripe.EventTypeInvoicePaymentSucceeded
		return s.reconcileInvoice(ctx, event, &stripeInv, succeeded)
	default:
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("ignoring unhandled event type %s", event.Type))
		}
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event, session *stripe.CheckoutSession) error {
	if session.Mode == stripe.CheckoutSessionModeSubscription {
		// the subscription lifecycle events carry the authoritative state
		if s.logg != nil {
			s.logg.Info(ctx, "skipping subscription-mode checkout session")
		}
		return nil
	}

	customerID := customerIDFromSession(session)
	if customerID == "" {
		s.warn(ctx, "checkout session has no customer, acknowledging", nil)
		return nil
	}
	intentID := paymentIntentIDFromSession(session)
	if intentID == "" {
		s.warn(ctx, "checkout session has no payment intent, acknowledging", nil)
		return nil
	}

	receiptURL := s.fetchReceiptURL(ctx, intentID)

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		usersRepo := s.usersRepo.WithTx(tx)
		billingRepo := s.billingRepo.WithTx(tx)

		user, err := usersRepo.FindByStripeCustomerID(ctx, customerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if user == nil {
			s.warn(ctx, "checkout session customer has no portal user, acknowledging", map[string]any{
				"stripe_customer_id": customerID,
			})
			return nil
		}

		projectID := projectIDFromMetadata(session.Metadata)

		payment, err := billingRepo.FindPaymentByStripeIntentID(ctx, intentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}

		metadata, err := json.Marshal(session.Metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal session metadata")
		}

		if payment == nil {
			payment = &models.Payment{
				ID:                    uuid.New(),
				UserID:                user.ID,
				ProjectID:             projectID,
				StripePaymentIntentID: intentID,
				AmountCents:           session.AmountTotal,
				Currency:              string(session.Currency),
				Status:                enums.PaymentStatusSucceeded,
				Kind:                  enums.PaymentKindOneTime,
				ReceiptURL:            receiptURL,
				Metadata:              metadata,
			}
			if err := billingRepo.CreatePayment(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
			}
		} else {
			payment.AmountCents = session.AmountTotal
			payment.Currency = string(session.Currency)
			payment.Status = enums.PaymentStatusSucceeded
			if projectID != nil {
				payment.ProjectID = projectID
			}
			if receiptURL != nil {
				payment.ReceiptURL = receiptURL
			}
			payment.Metadata = metadata
			if err := billingRepo.UpdatePayment(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
			}
		}

		if payment.ProjectID != nil {
			if err := s.ensureProjectInvoice(ctx, tx, user, payment); err != nil {
				return err
			}
			if _, err := s.ledger.Recalculate(ctx, tx, *payment.ProjectID); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Source:        &outbox.SourceRef{UserID: user.ID, StripeEventID: event.ID},
			Data: map[string]any{
				"paymentId":   payment.ID.String(),
				"amountCents": payment.AmountCents,
				"currency":    payment.Currency,
			},
		})
	})
}

// ensureProjectInvoice creates the internal invoice that documents a one-off
// project payment. Deduplicated on payment_id, not on a Stripe invoice ID,
// because checkout payments have none.
func (s *Service) ensureProjectInvoice(ctx context.Context, tx *gorm.DB, user *models.User, payment *models.Payment) error {
	billingRepo := s.billingRepo.WithTx(tx)

	existing, err := billingRepo.FindInvoiceByPaymentID(ctx, payment.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project invoice")
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	invoice := &models.Invoice{
		ID:            uuid.New(),
		UserID:        user.ID,
		ProjectID:     payment.ProjectID,
		PaymentID:     &payment.ID,
		Status:        enums.InvoiceStatusPaid,
		SubtotalCents: payment.AmountCents,
		TotalCents:    payment.AmountCents,
		Currency:      payment.Currency,
		IssuedAt:      &now,
		PaidAt:        &now,
	}
	return s.createInvoiceWithFreshNumber(ctx, tx, invoice)
}

const maxInvoiceNumberAttempts = 3

// createInvoiceWithFreshNumber assigns the next sequential number and inserts
// the invoice. The number is unique-indexed, so a concurrent transaction that
// claimed the same slot surfaces as a unique violation; each attempt runs in a
// savepoint and retries with the next slot without poisoning the surrounding
// transaction.
func (s *Service) createInvoiceWithFreshNumber(ctx context.Context, tx *gorm.DB, invoice *models.Invoice) error {
	for attempt := 0; attempt < maxInvoiceNumberAttempts; attempt++ {
		number, err := s.nextInvoiceNumber(ctx, s.billingRepo.WithTx(tx), attempt)
		if err != nil {
			return err
		}
		invoice.Number = number

		err = tx.Transaction(func(inner *gorm.DB) error {
			return s.billingRepo.WithTx(inner).CreateInvoice(ctx, invoice)
		})
		if err == nil {
			return nil
		}
		if !pkgdb.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}
	}
	return pkgerrors.New(pkgerrors.CodeDependency, "exhausted invoice number attempts")
}

func (s *Service) nextInvoiceNumber(ctx context.Context, billingRepo billing.Repository, skip int) (string, error) {
	count, err := billingRepo.CountInvoices(ctx)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count invoices")
	}
	return fmt.Sprintf("FL-%d-%06d", time.Now().UTC().Year(), count+1+int64(skip)), nil
}

func (s *Service) syncSubscription(ctx context.Context, event *stripe.Event, stripeSub *stripe.Subscription) error {
	if stripeSub == nil || stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	customerID := ""
	if stripeSub.Customer != nil {
		customerID = stripeSub.Customer.ID
	}
	deleted := event.Type == stripe.EventTypeCustomerSubscriptionDeleted

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		usersRepo := s.usersRepo.WithTx(tx)
		billingRepo := s.billingRepo.WithTx(tx)

		stored, err := billingRepo.FindSubscriptionByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}

		userID := uuid.Nil
		if stored != nil {
			userID = stored.UserID
		} else {
			user, err := usersRepo.FindByStripeCustomerID(ctx, customerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
			}
			if user == nil {
				s.warn(ctx, "subscription customer has no portal user, acknowledging", map[string]any{
					"stripe_customer_id":     customerID,
					"stripe_subscription_id": stripeSub.ID,
				})
				return nil
			}
			userID = user.ID
		}

		var synced *models.Subscription
		if stored == nil {
			built, buildErr := billing.BuildSubscriptionFromStripe(stripeSub, userID)
			if buildErr != nil {
				return buildErr
			}
			if deleted {
				billing.MarkSubscriptionCanceled(built, time.Now().UTC())
			}
			if err := billingRepo.CreateSubscription(ctx, built); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
			}
			synced = built
		} else {
			if err := billing.UpdateSubscriptionFromStripe(stored, stripeSub); err != nil {
				return err
			}
			if deleted {
				billing.MarkSubscriptionCanceled(stored, time.Now().UTC())
			}
			if err := billingRepo.UpdateSubscription(ctx, stored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
			}
			synced = stored
		}

		eventType := enums.EventSubscriptionSynced
		if deleted {
			eventType = enums.EventSubscriptionCanceled
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   synced.ID,
			Source:        &outbox.SourceRef{UserID: userID, StripeEventID: event.ID},
			Data: map[string]any{
				"subscriptionId": synced.ID.String(),
				"status":         synced.Status.String(),
			},
		})
	})
}

func (s *Service) reconcileInvoice(ctx context.Context, event *stripe.Event, stripeInv *stripe.Invoice, succeeded bool) error {
	if stripeInv == nil || stripeInv.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	customerID := ""
	if stripeInv.Customer != nil {
		customerID = stripeInv.Customer.ID
	}
	// the subscription field moves around between API versions, read it
	// straight off the raw event object
	stripeSubID := event.GetObjectValue("subscription")

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		usersRepo := s.usersRepo.WithTx(tx)
		billingRepo := s.billingRepo.WithTx(tx)

		stored, err := billingRepo.FindInvoiceByStripeID(ctx, stripeInv.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		userID := uuid.Nil
		if stored != nil {
			userID = stored.UserID
		} else {
			user, err := usersRepo.FindByStripeCustomerID(ctx, customerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
			}
			if user == nil {
				s.warn(ctx, "invoice customer has no portal user, acknowledging", map[string]any{
					"stripe_customer_id": customerID,
					"stripe_invoice_id":  stripeInv.ID,
				})
				return nil
			}
			userID = user.ID
		}

		var subscriptionID *uuid.UUID
		if stripeSubID != "" {
			sub, err := billingRepo.FindSubscriptionByStripeID(ctx, stripeSubID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
			}
			if sub != nil {
				subscriptionID = &sub.ID
			}
		}

		if stored == nil {
			stored = s.buildInvoiceFromStripe(stripeInv, userID, subscriptionID, succeeded)
			if stored.Number == "" {
				// Stripe omits numbers on some invoices, assign a local one
				if err := s.createInvoiceWithFreshNumber(ctx, tx, stored); err != nil {
					return err
				}
			} else if err := billingRepo.CreateInvoice(ctx, stored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
			}
		} else {
			applyInvoiceUpdate(stored, stripeInv, subscriptionID, succeeded)
			if err := billingRepo.UpdateInvoice(ctx, stored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update invoice")
			}
		}

		eventType := enums.EventInvoicePaid
		if !succeeded {
			eventType = enums.EventInvoicePaymentFailed
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   stored.ID,
			Source:        &outbox.SourceRef{UserID: userID, StripeEventID: event.ID},
			Data: map[string]any{
				"invoiceId":  stored.ID.String(),
				"status":     stored.Status.String(),
				"totalCents": stored.TotalCents,
			},
		})
	})
}

func (s *Service) buildInvoiceFromStripe(stripeInv *stripe.Invoice, userID uuid.UUID, subscriptionID *uuid.UUID, succeeded bool) *models.Invoice {
	status := billing.MapInvoiceStatus(stripeInv.Status)
	subtotal, tax, total := invoiceAmounts(stripeInv)

	invoice := &models.Invoice{
		ID:              uuid.New(),
		UserID:          userID,
		SubscriptionID:  subscriptionID,
		StripeInvoiceID: &stripeInv.ID,
		Number:          stripeInv.Number,
		Status:          status,
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		TotalCents:      total,
		Currency:        string(stripeInv.Currency),
		IssuedAt:        toTimePtr(stripeInv.Created),
		DueAt:           toTimePtr(stripeInv.DueDate),
	}
	if succeeded {
		invoice.Status = enums.InvoiceStatusPaid
		now := time.Now().UTC()
		invoice.PaidAt = &now
	} else if invoice.Status == enums.InvoiceStatusDraft {
		invoice.Status = enums.InvoiceStatusOpen
	}
	return invoice
}

// applyInvoiceUpdate refreshes stored amounts and applies the status rules: a
// successful payment never resurrects a voided invoice and paid_at is stamped
// once; a failed payment flips draft/open invoices to open and leaves settled
// or written-off invoices untouched.
func applyInvoiceUpdate(target *models.Invoice, stripeInv *stripe.Invoice, subscriptionID *uuid.UUID, succeeded bool) {
	subtotal, tax, total := invoiceAmounts(stripeInv)
	target.SubtotalCents = subtotal
	target.TaxCents = tax
	target.TotalCents = total
	if stripeInv.Currency != "" {
		target.Currency = string(stripeInv.Currency)
	}
	if stripeInv.Number != "" {
		target.Number = stripeInv.Number
	}
	if subscriptionID != nil {
		target.SubscriptionID = subscriptionID
	}
	if target.IssuedAt == nil {
		target.IssuedAt = toTimePtr(stripeInv.Created)
	}
	if due := toTimePtr(stripeInv.DueDate); due != nil {
		target.DueAt = due
	}

	if succeeded {
		if target.Status == enums.InvoiceStatusVoid {
			return
		}
		target.Status = enums.InvoiceStatusPaid
		if target.PaidAt == nil {
			now := time.Now().UTC()
			target.PaidAt = &now
		}
		return
	}

	if target.Status == enums.InvoiceStatusDraft || target.Status == enums.InvoiceStatusOpen {
		target.Status = enums.InvoiceStatusOpen
	}
}

// fetchReceiptURL pulls the hosted receipt for the payment intent's latest
// charge. Enrichment only; a Stripe hiccup here must not fail the event.
func (s *Service) fetchReceiptURL(ctx context.Context, intentID string) *string {
	pi, err := s.stripe.GetPaymentIntent(ctx, intentID, nil)
	if err != nil {
		s.warn(ctx, "fetch payment intent for receipt failed", map[string]any{"stripe_payment_intent_id": intentID})
		return nil
	}
	if pi == nil || pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return nil
	}
	ch, err := s.stripe.GetCharge(ctx, pi.LatestCharge.ID, nil)
	if err != nil {
		s.warn(ctx, "fetch charge for receipt failed", map[string]any{"stripe_charge_id": pi.LatestCharge.ID})
		return nil
	}
	if ch == nil || strings.TrimSpace(ch.ReceiptURL) == "" {
		return nil
	}
	url := ch.ReceiptURL
	return &url
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	if len(fields) > 0 {
		ctx = s.logg.WithFields(ctx, fields)
	}
	s.logg.Warn(ctx, msg)
}

func invoiceAmounts(stripeInv *stripe.Invoice) (subtotal, tax, total int64) {
	subtotal = stripeInv.Subtotal
	total = stripeInv.Total
	// tax line items drift across API versions; the difference is stable
	if total > subtotal {
		tax = total - subtotal
	}
	return subtotal, tax, total
}

func customerIDFromSession(session *stripe.CheckoutSession) string {
	if session == nil || session.Customer == nil {
		return ""
	}
	return session.Customer.ID
}

func paymentIntentIDFromSession(session *stripe.CheckoutSession) string {
	if session == nil || session.PaymentIntent == nil {
		return ""
	}
	return session.PaymentIntent.ID
}

func projectIDFromMetadata(metadata map[string]string) *uuid.UUID {
	raw, ok := metadata[projectIDMetadataKey]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &id
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
