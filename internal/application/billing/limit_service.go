package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

// LimitService checks tenant usage against plan limits. Checks are
// read-only and recompute usage from the event log on every call, so a
// check never races a concurrent recorder into a stale allow or deny, and
// repeating a check does not change any state.
type LimitService struct {
	limits        billingdomain.UsageLimitRepository
	events        billingdomain.UsageEventRepository
	subscriptions identity.SubscriptionRepository
	tenants       identity.TenantRepository
	publisher     shared.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewLimitService creates a limit checking service
func NewLimitService(
	limits billingdomain.UsageLimitRepository,
	events billingdomain.UsageEventRepository,
	subscriptions identity.SubscriptionRepository,
	tenants identity.TenantRepository,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *LimitService {
	return &LimitService{
		limits:        limits,
		events:        events,
		subscriptions: subscriptions,
		tenants:       tenants,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}
}

// CheckLimit evaluates the tenant's current-period usage of one event type
// against its plan limit. A plan that does not configure the type is
// treated as unlimited for it, and a tenant without a billable subscription
// is permitted unconditionally.
func (s *LimitService) CheckLimit(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType) (billingdomain.LimitCheckResult, error) {
	var zero billingdomain.LimitCheckResult

	if !eventType.IsValid() {
		return zero, shared.NewDomainError("INVALID_EVENT_TYPE", "Unknown usage event type: "+string(eventType))
	}

	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return zero, err
	}

	planID, err := s.activePlanID(ctx, tenantID)
	if err != nil {
		return zero, err
	}
	if planID == "" {
		usage, usageErr := s.currentUsage(ctx, tenantID, eventType)
		if usageErr != nil {
			return zero, usageErr
		}
		return billingdomain.LimitCheckResult{
			Type:         eventType,
			CurrentUsage: usage,
			Unlimited:    true,
		}, nil
	}

	limit, err := s.limits.FindByPlanAndType(ctx, planID, eventType)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			usage, usageErr := s.currentUsage(ctx, tenantID, eventType)
			if usageErr != nil {
				return zero, usageErr
			}
			return billingdomain.LimitCheckResult{
				Type:         eventType,
				CurrentUsage: usage,
				Unlimited:    true,
			}, nil
		}
		return zero, err
	}

	usage, err := s.currentUsage(ctx, tenantID, eventType)
	if err != nil {
		return zero, err
	}

	result := limit.CheckUsage(usage)
	s.notify(tenantID, result)
	return result, nil
}

// CheckAllLimits evaluates every limit configured for the tenant's plan
func (s *LimitService) CheckAllLimits(ctx context.Context, tenantID uuid.UUID) ([]billingdomain.LimitCheckResult, error) {
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return nil, err
	}

	planID, err := s.activePlanID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if planID == "" {
		return []billingdomain.LimitCheckResult{}, nil
	}

	limits, err := s.limits.FindByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	results := make([]billingdomain.LimitCheckResult, 0, len(limits))
	for i := range limits {
		usage, err := s.currentUsage(ctx, tenantID, limits[i].Type)
		if err != nil {
			return nil, err
		}
		result := limits[i].CheckUsage(usage)
		s.notify(tenantID, result)
		results = append(results, result)
	}
	return results, nil
}

// EnforceLimit returns a QuotaExceededError when the tenant is over the
// limit for the event type, and nil otherwise
func (s *LimitService) EnforceLimit(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType) error {
	result, err := s.CheckLimit(ctx, tenantID, eventType)
	if err != nil {
		return err
	}
	if result.OverLimit {
		return &QuotaExceededError{Result: result}
	}
	return nil
}

// activePlanID returns the plan the tenant is billed under, or "" when the
// tenant has no subscription or a canceled one. Without a billable plan no
// limits apply, so checks permit unconditionally.
func (s *LimitService) activePlanID(ctx context.Context, tenantID uuid.UUID) (string, error) {
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if sub.Status == identity.SubscriptionStatusCanceled {
		return "", nil
	}
	return sub.PlanID, nil
}

func (s *LimitService) currentUsage(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType) (int64, error) {
	start, end := billingdomain.BillingPeriod(s.now())
	return s.events.SumQuantity(ctx, tenantID, eventType, start, end)
}

func (s *LimitService) notify(tenantID uuid.UUID, result billingdomain.LimitCheckResult) {
	if s.publisher == nil {
		return
	}

	var event shared.DomainEvent
	switch {
	case result.OverLimit:
		event = billingdomain.NewUsageLimitExceededEvent(tenantID, result)
	case result.NearLimit:
		event = billingdomain.NewUsageLimitWarningEvent(tenantID, result)
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish limit event",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}()
}
