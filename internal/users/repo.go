package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
)

// Repository handles user persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*models.User, error) {
	if stripeCustomerID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", stripeCustomerID).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}
