package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

// Invoice is a billable statement. Stripe-issued invoices carry a
// stripe_invoice_id; project invoices generated for one-off checkout payments
// do not, and are deduplicated on the (user_id, payment_id) pair instead.
type Invoice struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID  *uuid.UUID          `gorm:"column:subscription_id;type:uuid"`
	ProjectID       *uuid.UUID          `gorm:"column:project_id;type:uuid;index"`
	PaymentID       *uuid.UUID          `gorm:"column:payment_id;type:uuid"`
	StripeInvoiceID *string             `gorm:"column:stripe_invoice_id;unique"`
	Number          string              `gorm:"column:number;not null"`
	Status          enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'open'"`
	SubtotalCents   int64               `gorm:"column:subtotal_cents;not null"`
	TaxCents        int64               `gorm:"column:tax_cents;not null;default:0"`
	TotalCents      int64               `gorm:"column:total_cents;not null"`
	Currency        string              `gorm:"column:currency;not null;default:'usd'"`
	Description     *string             `gorm:"column:description"`
	IssuedAt        *time.Time          `gorm:"column:issued_at"`
	DueAt           *time.Time          `gorm:"column:due_at"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	VoidedAt        *time.Time          `gorm:"column:voided_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
