package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

// Project is a unit of client work. PaidAmountCents is derived from the sum of
// succeeded payments and is never mutated independently.
type Project struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Name             string              `gorm:"column:name;not null"`
	Status           enums.ProjectStatus `gorm:"column:status;type:project_status;not null;default:'quote_requested'"`
	TotalAmountCents int64               `gorm:"column:total_amount_cents;not null;default:0"`
	PaidAmountCents  int64               `gorm:"column:paid_amount_cents;not null;default:0"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
