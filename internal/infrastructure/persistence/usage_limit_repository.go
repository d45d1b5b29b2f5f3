package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
)

// UsageLimitModel is the GORM model for plan usage limits
type UsageLimitModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlanID       string    `gorm:"type:varchar(50);uniqueIndex:uq_usage_limits_plan_type;not null"`
	EventType    string    `gorm:"type:varchar(50);uniqueIndex:uq_usage_limits_plan_type;not null"`
	MaxQuantity  *int64
	UnitPrice    decimal.Decimal  `gorm:"type:decimal(12,4);not null;default:0"`
	OveragePrice *decimal.Decimal `gorm:"type:decimal(12,4)"`
	Active       bool             `gorm:"not null;default:true"`
	CreatedAt    time.Time        `gorm:"autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageLimitModel) TableName() string {
	return "usage_limits"
}

// ToEntity converts the model to a domain entity
func (m *UsageLimitModel) ToEntity() *billing.UsageLimit {
	eventType, _ := billing.ParseEventType(m.EventType)

	limit := &billing.UsageLimit{
		PlanID:       m.PlanID,
		Type:         eventType,
		MaxQuantity:  m.MaxQuantity,
		UnitPrice:    m.UnitPrice,
		OveragePrice: m.OveragePrice,
		Active:       m.Active,
	}
	limit.ID = m.ID
	limit.CreatedAt = m.CreatedAt
	limit.UpdatedAt = m.UpdatedAt
	return limit
}

// UsageLimitModelFromEntity creates a model from a domain entity
func UsageLimitModelFromEntity(e *billing.UsageLimit) *UsageLimitModel {
	return &UsageLimitModel{
		ID:           e.ID,
		PlanID:       e.PlanID,
		EventType:    string(e.Type),
		MaxQuantity:  e.MaxQuantity,
		UnitPrice:    e.UnitPrice,
		OveragePrice: e.OveragePrice,
		Active:       e.Active,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// UsageLimitRepository implements billing.UsageLimitRepository
type UsageLimitRepository struct {
	db *gorm.DB
}

// NewUsageLimitRepository creates a new usage limit repository
func NewUsageLimitRepository(db *gorm.DB) *UsageLimitRepository {
	return &UsageLimitRepository{db: db}
}

// FindByPlan returns all active limits configured for a plan
func (r *UsageLimitRepository) FindByPlan(ctx context.Context, planID string) ([]billing.UsageLimit, error) {
	var models []UsageLimitModel
	err := dbFromContext(ctx, r.db).
		Where("plan_id = ? AND active = ?", planID, true).
		Order("event_type ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	limits := make([]billing.UsageLimit, 0, len(models))
	for i := range models {
		limits = append(limits, *models[i].ToEntity())
	}
	return limits, nil
}

// FindByPlanAndType returns the active limit for one event type
func (r *UsageLimitRepository) FindByPlanAndType(ctx context.Context, planID string, eventType billing.EventType) (*billing.UsageLimit, error) {
	var model UsageLimitModel
	err := dbFromContext(ctx, r.db).
		Where("plan_id = ? AND event_type = ? AND active = ?", planID, string(eventType), true).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Save creates or updates a limit
func (r *UsageLimitRepository) Save(ctx context.Context, limit *billing.UsageLimit) error {
	model := UsageLimitModelFromEntity(limit)
	return dbFromContext(ctx, r.db).Save(model).Error
}

// Delete removes a limit
func (r *UsageLimitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return dbFromContext(ctx, r.db).Delete(&UsageLimitModel{}, "id = ?", id).Error
}

var _ billing.UsageLimitRepository = (*UsageLimitRepository)(nil)
