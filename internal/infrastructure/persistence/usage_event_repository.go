package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
)

// UsageEventModel is the GORM model for usage events
type UsageEventModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID  `gorm:"type:uuid;index:idx_usage_events_tenant_type_period;not null"`
	UserID      *uuid.UUID `gorm:"type:uuid"`
	EventType   string     `gorm:"type:varchar(50);index:idx_usage_events_tenant_type_period;not null"`
	ResourceID  *string    `gorm:"type:varchar(255)"`
	Quantity    int64      `gorm:"not null"`
	Metadata    []byte     `gorm:"type:jsonb;default:'{}'"`
	PeriodStart time.Time  `gorm:"index:idx_usage_events_tenant_type_period;not null"`
	PeriodEnd   time.Time  `gorm:"not null"`
	RecordedAt  time.Time  `gorm:"index;not null"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// ToEntity converts the model to a domain entity
func (m *UsageEventModel) ToEntity() *billing.UsageEvent {
	eventType, _ := billing.ParseEventType(m.EventType)

	var metadata map[string]interface{}
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata)
	}

	return &billing.UsageEvent{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:    m.TenantID,
		UserID:      m.UserID,
		Type:        eventType,
		ResourceID:  m.ResourceID,
		Quantity:    m.Quantity,
		Metadata:    metadata,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		RecordedAt:  m.RecordedAt,
	}
}

// UsageEventModelFromEntity creates a model from a domain entity
func UsageEventModelFromEntity(e *billing.UsageEvent) *UsageEventModel {
	var metadataBytes []byte
	if e.Metadata != nil {
		metadataBytes, _ = json.Marshal(e.Metadata)
	} else {
		metadataBytes = []byte("{}")
	}

	return &UsageEventModel{
		ID:          e.ID,
		TenantID:    e.TenantID,
		UserID:      e.UserID,
		EventType:   string(e.Type),
		ResourceID:  e.ResourceID,
		Quantity:    e.Quantity,
		Metadata:    metadataBytes,
		PeriodStart: e.PeriodStart,
		PeriodEnd:   e.PeriodEnd,
		RecordedAt:  e.RecordedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// UsageEventRepository implements billing.UsageEventRepository
type UsageEventRepository struct {
	db *gorm.DB
}

// NewUsageEventRepository creates a new usage event repository
func NewUsageEventRepository(db *gorm.DB) *UsageEventRepository {
	return &UsageEventRepository{db: db}
}

// Save persists a usage event
func (r *UsageEventRepository) Save(ctx context.Context, event *billing.UsageEvent) error {
	model := UsageEventModelFromEntity(event)
	return dbFromContext(ctx, r.db).Create(model).Error
}

// FindByFilter returns events matching the filter, paginated
func (r *UsageEventRepository) FindByFilter(ctx context.Context, filter billing.UsageEventFilter) (shared.Paginated[billing.UsageEvent], error) {
	var result shared.Paginated[billing.UsageEvent]

	query := r.applyFilter(dbFromContext(ctx, r.db).Model(&UsageEventModel{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return result, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	orderBy := ValidateSortField(filter.OrderBy, UsageEventSortFields, "recorded_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var models []UsageEventModel
	err := query.
		Order(fmt.Sprintf("%s %s", orderBy, orderDir)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return result, err
	}

	items := make([]billing.UsageEvent, 0, len(models))
	for i := range models {
		items = append(items, *models[i].ToEntity())
	}
	return shared.NewPaginated(items, total, page, pageSize), nil
}

// SumQuantity returns the total quantity for a tenant and event type in a
// time window, computed from the event log
func (r *UsageEventRepository) SumQuantity(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType, start, end time.Time) (int64, error) {
	var total int64
	err := dbFromContext(ctx, r.db).
		Model(&UsageEventModel{}).
		Select("COALESCE(SUM(quantity), 0) as total").
		Where("tenant_id = ? AND event_type = ? AND recorded_at >= ? AND recorded_at <= ?",
			tenantID, string(eventType), start, end).
		Scan(&total).Error
	return total, err
}

// CountByTenant returns the number of events recorded for a tenant in a
// time window
func (r *UsageEventRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	err := dbFromContext(ctx, r.db).
		Model(&UsageEventModel{}).
		Where("tenant_id = ? AND recorded_at >= ? AND recorded_at <= ?", tenantID, start, end).
		Count(&count).Error
	return count, err
}

func (r *UsageEventRepository) applyFilter(query *gorm.DB, filter billing.UsageEventFilter) *gorm.DB {
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Type != nil {
		query = query.Where("event_type = ?", string(*filter.Type))
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.StartTime != nil {
		query = query.Where("recorded_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("recorded_at <= ?", *filter.EndTime)
	}
	return query
}

var _ billing.UsageEventRepository = (*UsageEventRepository)(nil)
