package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

// SubscriptionRepository implements identity.SubscriptionRepository
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Save creates or updates a subscription
func (r *SubscriptionRepository) Save(ctx context.Context, subscription *identity.Subscription) error {
	return dbFromContext(ctx, r.db).Save(subscription).Error
}

// FindByTenant returns the tenant's subscription, or shared.ErrNotFound
func (r *SubscriptionRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*identity.Subscription, error) {
	var subscription identity.Subscription
	err := dbFromContext(ctx, r.db).Where("tenant_id = ?", tenantID).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &subscription, nil
}

// FindByPaymentIntentID returns the subscription awaiting the given payment
// intent, or shared.ErrNotFound
func (r *SubscriptionRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*identity.Subscription, error) {
	var subscription identity.Subscription
	err := dbFromContext(ctx, r.db).Where("payment_intent_id = ?", paymentIntentID).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &subscription, nil
}

var _ identity.SubscriptionRepository = (*SubscriptionRepository)(nil)
