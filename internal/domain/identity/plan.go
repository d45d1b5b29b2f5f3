package identity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/backoffice/backend/internal/domain/shared"
)

// Plan is a subscription tier a tenant can be billed under. Plans are
// identified by a stable string code (e.g. "basic", "professional") that
// usage limits and subscriptions reference; the monthly price is a major
// currency amount.
type Plan struct {
	shared.BaseEntity
	Code         string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name         string          `gorm:"type:varchar(100);not null"`
	Description  string          `gorm:"type:text"`
	MonthlyPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	MaxUsers     int             `gorm:"not null;default:5"`
	Active       bool            `gorm:"not null;default:true"`
	SortOrder    int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (Plan) TableName() string {
	return "plans"
}

// NewPlan creates an active plan
func NewPlan(code, name string, monthlyPrice decimal.Decimal, maxUsers int) (*Plan, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Plan code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Plan name cannot be empty")
	}
	if monthlyPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Monthly price cannot be negative")
	}
	if maxUsers < 0 {
		return nil, shared.NewDomainError("INVALID_MAX_USERS", "Max users cannot be negative")
	}

	return &Plan{
		BaseEntity:   shared.NewBaseEntity(),
		Code:         code,
		Name:         name,
		MonthlyPrice: monthlyPrice,
		MaxUsers:     maxUsers,
		Active:       true,
	}, nil
}

// IsFree reports whether the plan has no monthly charge
func (p *Plan) IsFree() bool {
	return p.MonthlyPrice.IsZero()
}

// AllowsUserCount reports whether the plan accommodates the given number of
// users. A zero MaxUsers means unlimited seats.
func (p *Plan) AllowsUserCount(count int) bool {
	return p.MaxUsers == 0 || count <= p.MaxUsers
}

// Deactivate retires the plan from new subscriptions
func (p *Plan) Deactivate() {
	p.Active = false
	p.UpdatedAt = time.Now()
}
