package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents the canonical client identity. The Stripe customer link is
// created lazily on the first billing interaction.
type User struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string     `gorm:"type:text;not null;uniqueIndex"`
	FirstName        string     `gorm:"column:first_name;not null"`
	LastName         string     `gorm:"column:last_name;not null"`
	CompanyName      *string    `gorm:"column:company_name"`
	StripeCustomerID *string    `gorm:"column:stripe_customer_id;unique"`
	IsActive         bool       `gorm:"column:is_active;not null;default:true"`
	LastLoginAt      *time.Time `gorm:"column:last_login_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
