package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
)

// InvoiceModel is the GORM model for invoices. Lines are stored as a jsonb
// document; they are written once at issue time and never queried by field.
type InvoiceModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Number      string          `gorm:"type:varchar(30);uniqueIndex;not null"`
	PeriodStart time.Time       `gorm:"not null"`
	PeriodEnd   time.Time       `gorm:"not null"`
	Lines       []byte          `gorm:"type:jsonb"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status      string          `gorm:"type:varchar(20);not null;default:'draft'"`
	IssuedAt    time.Time       `gorm:"not null"`
	DueAt       time.Time       `gorm:"not null"`
	PaidAt      *time.Time
	Version     int       `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToEntity converts the model to a domain aggregate
func (m *InvoiceModel) ToEntity() (*billing.Invoice, error) {
	var lines []billing.InvoiceLine
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &lines); err != nil {
			return nil, fmt.Errorf("unmarshal invoice lines: %w", err)
		}
	}

	inv := &billing.Invoice{
		TenantID:    m.TenantID,
		Number:      m.Number,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		Lines:       lines,
		Subtotal:    m.Subtotal,
		Total:       m.Total,
		Status:      billing.InvoiceStatus(m.Status),
		IssuedAt:    m.IssuedAt,
		DueAt:       m.DueAt,
		PaidAt:      m.PaidAt,
	}
	inv.ID = m.ID
	inv.CreatedAt = m.CreatedAt
	inv.UpdatedAt = m.UpdatedAt
	inv.Version = m.Version
	return inv, nil
}

// InvoiceModelFromEntity creates a model from a domain aggregate
func InvoiceModelFromEntity(e *billing.Invoice) (*InvoiceModel, error) {
	lines, err := json.Marshal(e.Lines)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice lines: %w", err)
	}

	return &InvoiceModel{
		ID:          e.ID,
		TenantID:    e.TenantID,
		Number:      e.Number,
		PeriodStart: e.PeriodStart,
		PeriodEnd:   e.PeriodEnd,
		Lines:       lines,
		Subtotal:    e.Subtotal,
		Total:       e.Total,
		Status:      string(e.Status),
		IssuedAt:    e.IssuedAt,
		DueAt:       e.DueAt,
		PaidAt:      e.PaidAt,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}, nil
}

// InvoiceRepository implements billing.InvoiceRepository
type InvoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Save creates or updates an invoice
func (r *InvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	model, err := InvoiceModelFromEntity(invoice)
	if err != nil {
		return err
	}
	return dbFromContext(ctx, r.db).Save(model).Error
}

// FindByID returns the invoice with the given ID, or shared.ErrNotFound
func (r *InvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model InvoiceModel
	err := dbFromContext(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity()
}

// FindByNumber returns the invoice with the given number, or shared.ErrNotFound
func (r *InvoiceRepository) FindByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	var model InvoiceModel
	err := dbFromContext(ctx, r.db).Where("number = ?", number).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity()
}

// FindByTenant returns a tenant's invoices, paginated
func (r *InvoiceRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[billing.Invoice], error) {
	db := dbFromContext(ctx, r.db)
	query := db.Model(&InvoiceModel{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[billing.Invoice]{}, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "issued_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var models []InvoiceModel
	err := query.
		Order(fmt.Sprintf("%s %s", orderBy, orderDir)).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&models).Error
	if err != nil {
		return shared.Paginated[billing.Invoice]{}, err
	}

	invoices := make([]billing.Invoice, 0, len(models))
	for i := range models {
		inv, err := models[i].ToEntity()
		if err != nil {
			return shared.Paginated[billing.Invoice]{}, err
		}
		invoices = append(invoices, *inv)
	}

	return shared.NewPaginated(invoices, total, filter.Page, filter.PageSize), nil
}

var _ billing.InvoiceRepository = (*InvoiceRepository)(nil)
