package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

// Payment records one money movement, keyed by the Stripe payment intent so
// redelivered events upsert instead of duplicating rows.
type Payment struct {
	ID                    uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ProjectID             *uuid.UUID          `gorm:"column:project_id;type:uuid;index"`
	StripePaymentIntentID string              `gorm:"column:stripe_payment_intent_id;not null;unique"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	Currency              string              `gorm:"column:currency;not null;default:'usd'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Kind                  enums.PaymentKind   `gorm:"column:kind;type:payment_kind;not null;default:'one_time'"`
	Description           *string             `gorm:"column:description"`
	ReceiptURL            *string             `gorm:"column:receipt_url"`
	Metadata              json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
