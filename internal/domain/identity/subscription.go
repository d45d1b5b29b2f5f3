package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/backoffice/backend/internal/domain/shared"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// PlanChangeState tracks a pending mid-cycle plan change
type PlanChangeState string

const (
	// PlanChangeStateNone means no change is in flight
	PlanChangeStateNone PlanChangeState = "none"
	// PlanChangeStateRequested means a change was requested but not yet paid for
	PlanChangeStateRequested PlanChangeState = "requested"
	// PlanChangeStateAwaitingPayment means a payment intent was created and the
	// change applies when the payment confirmation arrives
	PlanChangeStateAwaitingPayment PlanChangeState = "awaiting_payment"
	// PlanChangeStateFailed means the payment for the change failed
	PlanChangeStateFailed PlanChangeState = "failed"
)

// Subscription binds a tenant to a plan for a billing period. Each tenant
// has at most one active subscription; mid-cycle plan changes move through
// the pending change state machine and only take effect once any prorated
// payment is confirmed.
type Subscription struct {
	shared.BaseAggregateRoot
	TenantID             uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex"`
	PlanID               string             `gorm:"type:varchar(50);not null"`
	Status               SubscriptionStatus `gorm:"type:varchar(20);not null;default:'active'"`
	PeriodStart          time.Time          `gorm:"not null"`
	PeriodEnd            time.Time          `gorm:"not null"`
	StripeSubscriptionID string             `gorm:"type:varchar(100);index"`
	PendingPlanID        *string            `gorm:"type:varchar(50)"`
	PaymentIntentID      *string            `gorm:"type:varchar(100);index"`
	ChangeState          PlanChangeState    `gorm:"type:varchar(20);not null;default:'none'"`
	ChangeError          string             `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// NewSubscription creates an active subscription on the calendar-month
// billing period containing now
func NewSubscription(tenantID uuid.UUID, planID string, now time.Time) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID is required")
	}

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)

	return &Subscription{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          tenantID,
		PlanID:            planID,
		Status:            SubscriptionStatusActive,
		PeriodStart:       start,
		PeriodEnd:         end,
		ChangeState:       PlanChangeStateNone,
	}, nil
}

// RequestPlanChange records the intent to move to a new plan. A fresh
// request supersedes any previously failed or unpaid one.
func (s *Subscription) RequestPlanChange(planID string) error {
	if planID == "" {
		return shared.NewDomainError("INVALID_PLAN", "Plan ID is required")
	}
	if s.Status == SubscriptionStatusCanceled {
		return shared.ErrInvalidState
	}

	s.PendingPlanID = &planID
	s.PaymentIntentID = nil
	s.ChangeState = PlanChangeStateRequested
	s.ChangeError = ""
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return nil
}

// AwaitPayment parks the pending change until the given payment intent is
// confirmed by the payment provider
func (s *Subscription) AwaitPayment(paymentIntentID string) error {
	if s.ChangeState != PlanChangeStateRequested {
		return shared.ErrInvalidState
	}
	if paymentIntentID == "" {
		return shared.NewDomainError("INVALID_PAYMENT_INTENT", "Payment intent ID is required")
	}

	s.PaymentIntentID = &paymentIntentID
	s.ChangeState = PlanChangeStateAwaitingPayment
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return nil
}

// ApplyPlanChange switches the subscription to the given plan. The
// operation is idempotent: payment confirmations arrive at least once, so
// re-applying a change that already took effect is a no-op.
func (s *Subscription) ApplyPlanChange(planID string, now time.Time) error {
	if planID == "" {
		return shared.NewDomainError("INVALID_PLAN", "Plan ID is required")
	}
	if s.PlanID == planID && s.ChangeState == PlanChangeStateNone {
		return nil
	}

	s.PlanID = planID
	s.PendingPlanID = nil
	s.PaymentIntentID = nil
	s.ChangeState = PlanChangeStateNone
	s.ChangeError = ""
	if s.Status == SubscriptionStatusPastDue {
		s.Status = SubscriptionStatusActive
	}
	s.UpdatedAt = now
	s.IncrementVersion()
	return nil
}

// FailPlanChange marks the pending change as failed. The subscription stays
// on its current plan; the failed request remains visible for support.
func (s *Subscription) FailPlanChange(reason string) {
	if s.ChangeState == PlanChangeStateNone {
		return
	}
	s.ChangeState = PlanChangeStateFailed
	s.ChangeError = reason
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}

// HasPendingChange reports whether a plan change is in flight
func (s *Subscription) HasPendingChange() bool {
	return s.ChangeState == PlanChangeStateRequested || s.ChangeState == PlanChangeStateAwaitingPayment
}

// MarkPastDue flags the subscription after a failed renewal payment
func (s *Subscription) MarkPastDue() {
	if s.Status == SubscriptionStatusActive {
		s.Status = SubscriptionStatusPastDue
		s.UpdatedAt = time.Now()
		s.IncrementVersion()
	}
}

// Cancel ends the subscription
func (s *Subscription) Cancel() error {
	if s.Status == SubscriptionStatusCanceled {
		return shared.ErrInvalidState
	}
	s.Status = SubscriptionStatusCanceled
	s.PendingPlanID = nil
	s.PaymentIntentID = nil
	s.ChangeState = PlanChangeStateNone
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return nil
}

// RenewPeriod moves the subscription onto the calendar month containing now
func (s *Subscription) RenewPeriod(now time.Time) {
	s.PeriodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	s.PeriodEnd = s.PeriodStart.AddDate(0, 1, 0).Add(-time.Nanosecond)
	s.UpdatedAt = now
	s.IncrementVersion()
}

// IsActive reports whether the subscription is currently in good standing
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
