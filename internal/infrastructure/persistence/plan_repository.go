package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

// PlanRepository implements identity.PlanRepository
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Save creates or updates a plan
func (r *PlanRepository) Save(ctx context.Context, plan *identity.Plan) error {
	return dbFromContext(ctx, r.db).Save(plan).Error
}

// FindByCode returns the plan with the given code, or shared.ErrNotFound
func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*identity.Plan, error) {
	var plan identity.Plan
	err := dbFromContext(ctx, r.db).Where("code = ?", code).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// FindActive returns all active plans ordered for display
func (r *PlanRepository) FindActive(ctx context.Context) ([]identity.Plan, error) {
	var plans []identity.Plan
	err := dbFromContext(ctx, r.db).
		Where("active = ?", true).
		Order("sort_order ASC, code ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

var _ identity.PlanRepository = (*PlanRepository)(nil)
