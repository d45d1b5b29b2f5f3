package identity

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepository persists tenants
type TenantRepository interface {
	Save(ctx context.Context, tenant *Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCode(ctx context.Context, code string) (*Tenant, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*Tenant, error)
}

// PlanRepository persists subscription plans
type PlanRepository interface {
	Save(ctx context.Context, plan *Plan) error
	FindByCode(ctx context.Context, code string) (*Plan, error)
	FindActive(ctx context.Context) ([]Plan, error)
}

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	Save(ctx context.Context, subscription *Subscription) error
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Subscription, error)
}

// UserCounter reports how many users a tenant currently has. Plan changes
// validate the target plan's seat limit against this count.
type UserCounter interface {
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}
