package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/identity"
)

// UserModel is the GORM model for tenant users. The billing engine only
// needs the seat count per tenant; user management itself lives in the
// identity provider.
type UserModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Email     string    `gorm:"type:varchar(200);not null"`
	Name      string    `gorm:"type:varchar(100)"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UserModel) TableName() string {
	return "users"
}

// UserRepository implements identity.UserCounter
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CountByTenant returns the number of active users in a tenant
func (r *UserRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int64
	err := dbFromContext(ctx, r.db).
		Model(&UserModel{}).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Count(&count).Error
	return int(count), err
}

var _ identity.UserCounter = (*UserRepository)(nil)
