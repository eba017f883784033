package projects

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
)

// Repository handles project persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Project, error)
	Update(ctx context.Context, project *models.Project) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a project repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	var list []models.Project
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) Update(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}
