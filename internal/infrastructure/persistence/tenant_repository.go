package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

// TenantRepository implements identity.TenantRepository. Tenants carry
// their GORM tags on the aggregate itself, so no separate model is needed.
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Save creates or updates a tenant
func (r *TenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	return dbFromContext(ctx, r.db).Save(tenant).Error
}

// FindByID returns the tenant with the given ID, or shared.ErrNotFound
func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var tenant identity.Tenant
	err := dbFromContext(ctx, r.db).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByCode returns the tenant with the given code, or shared.ErrNotFound
func (r *TenantRepository) FindByCode(ctx context.Context, code string) (*identity.Tenant, error) {
	var tenant identity.Tenant
	err := dbFromContext(ctx, r.db).Where("code = ?", strings.ToUpper(code)).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByStripeCustomerID returns the tenant linked to a payment provider
// customer, or shared.ErrNotFound
func (r *TenantRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*identity.Tenant, error) {
	var tenant identity.Tenant
	err := dbFromContext(ctx, r.db).Where("stripe_customer_id = ?", customerID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

var _ identity.TenantRepository = (*TenantRepository)(nil)
