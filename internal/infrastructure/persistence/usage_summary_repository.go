package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
)

// UsageSummaryModel is the GORM model for usage summaries. The composite
// unique index is what the atomic upsert conflicts against.
type UsageSummaryModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID       `gorm:"type:uuid;uniqueIndex:uq_usage_summaries_tenant_type_period;not null"`
	EventType     string          `gorm:"type:varchar(50);uniqueIndex:uq_usage_summaries_tenant_type_period;not null"`
	TotalQuantity int64           `gorm:"not null;default:0"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	PeriodStart   time.Time       `gorm:"uniqueIndex:uq_usage_summaries_tenant_type_period;not null"`
	PeriodEnd     time.Time       `gorm:"not null"`
	Status        string          `gorm:"type:varchar(20);not null;default:'pending'"`
	BilledAt      *time.Time
	InvoiceID     *uuid.UUID `gorm:"type:uuid"`
	Version       int        `gorm:"not null;default:1"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageSummaryModel) TableName() string {
	return "usage_summaries"
}

// ToEntity converts the model to a domain aggregate
func (m *UsageSummaryModel) ToEntity() *billing.UsageSummary {
	eventType, _ := billing.ParseEventType(m.EventType)

	summary := &billing.UsageSummary{
		TenantID:    m.TenantID,
		Type:        eventType,
		TotalQty:    m.TotalQuantity,
		UnitPrice:   m.UnitPrice,
		TotalAmount: m.TotalAmount,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		Status:      billing.SummaryStatus(m.Status),
		BilledAt:    m.BilledAt,
		InvoiceID:   m.InvoiceID,
	}
	summary.ID = m.ID
	summary.CreatedAt = m.CreatedAt
	summary.UpdatedAt = m.UpdatedAt
	summary.Version = m.Version
	return summary
}

// UsageSummaryModelFromEntity creates a model from a domain aggregate
func UsageSummaryModelFromEntity(e *billing.UsageSummary) *UsageSummaryModel {
	return &UsageSummaryModel{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EventType:     string(e.Type),
		TotalQuantity: e.TotalQty,
		UnitPrice:     e.UnitPrice,
		TotalAmount:   e.TotalAmount,
		PeriodStart:   e.PeriodStart,
		PeriodEnd:     e.PeriodEnd,
		Status:        string(e.Status),
		BilledAt:      e.BilledAt,
		InvoiceID:     e.InvoiceID,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// UsageSummaryRepository implements billing.UsageSummaryRepository
type UsageSummaryRepository struct {
	db *gorm.DB
}

// NewUsageSummaryRepository creates a new usage summary repository
func NewUsageSummaryRepository(db *gorm.DB) *UsageSummaryRepository {
	return &UsageSummaryRepository{db: db}
}

// Increment adds the summary's quantity to the (tenant, type, period) row,
// inserting it on first use. The increment happens in the database with a
// single INSERT ... ON CONFLICT DO UPDATE, so concurrent recorders
// serialize on the row and no update is ever lost. The unit price sticks
// from whichever write created the row.
func (r *UsageSummaryRepository) Increment(ctx context.Context, summary *billing.UsageSummary) error {
	model := UsageSummaryModelFromEntity(summary)
	return dbFromContext(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "event_type"}, {Name: "period_start"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_quantity": gorm.Expr("usage_summaries.total_quantity + ?", summary.TotalQty),
				"updated_at":     time.Now(),
			}),
		}).
		Create(model).Error
}

// FindByTenantTypePeriod returns the summary for one event type
func (r *UsageSummaryRepository) FindByTenantTypePeriod(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType, periodStart time.Time) (*billing.UsageSummary, error) {
	var model UsageSummaryModel
	err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND event_type = ? AND period_start = ?", tenantID, string(eventType), periodStart).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindByTenantPeriod returns all summaries for a tenant in a period
func (r *UsageSummaryRepository) FindByTenantPeriod(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) ([]billing.UsageSummary, error) {
	var models []UsageSummaryModel
	err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND period_start = ?", tenantID, periodStart).
		Order("event_type ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]billing.UsageSummary, 0, len(models))
	for i := range models {
		summaries = append(summaries, *models[i].ToEntity())
	}
	return summaries, nil
}

// Update persists status or amount changes to an existing summary. The
// quantity is deliberately left out: only Increment may touch it.
func (r *UsageSummaryRepository) Update(ctx context.Context, summary *billing.UsageSummary) error {
	return dbFromContext(ctx, r.db).
		Model(&UsageSummaryModel{}).
		Where("id = ?", summary.ID).
		Updates(map[string]interface{}{
			"unit_price":   summary.UnitPrice,
			"total_amount": summary.TotalAmount,
			"status":       string(summary.Status),
			"billed_at":    summary.BilledAt,
			"invoice_id":   summary.InvoiceID,
			"updated_at":   time.Now(),
		}).Error
}

var _ billing.UsageSummaryRepository = (*UsageSummaryRepository)(nil)
