package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

// Repository handles payment, subscription, and invoice persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindPaymentByStripeIntentID(ctx context.Context, stripePaymentIntentID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	SumSucceededPaymentsByProject(ctx context.Context, projectID uuid.UUID) (int64, error)

	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error

	FindInvoiceByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error)
	FindInvoiceByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	CountInvoices(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPaymentByStripeIntentID(ctx context.Context, stripePaymentIntentID string) (*models.Payment, error) {
	if stripePaymentIntentID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", stripePaymentIntentID).
		First(&payment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) SumSucceededPaymentsByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("project_id = ?", projectID).
		Where("status = ?", enums.PaymentStatusSucceeded).
		Scan(&total).Error
	return total, err
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindInvoiceByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	if stripeInvoiceID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("stripe_invoice_id = ?", stripeInvoiceID).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindInvoiceByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) UpdateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) CountInvoices(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).Count(&count).Error
	return count, err
}
