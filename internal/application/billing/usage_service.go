package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

// RecordUsageInput carries one metered action to record
type RecordUsageInput struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Type       billingdomain.EventType
	Quantity   int64 // defaults to 1 when zero
	ResourceID string
	Metadata   map[string]interface{}
}

// UsageService records metered usage. Recording appends to the immutable
// event log and bumps the running period summary in the same transaction,
// so the two can never drift apart.
type UsageService struct {
	events        billingdomain.UsageEventRepository
	summaries     billingdomain.UsageSummaryRepository
	limits        billingdomain.UsageLimitRepository
	subscriptions identity.SubscriptionRepository
	tx            billingdomain.TxRunner
	publisher     shared.EventPublisher
	meterCache    billingdomain.UsageMeterCache
	meterTTL      time.Duration
	logger        *zap.Logger
}

// NewUsageService creates a usage recording service
func NewUsageService(
	events billingdomain.UsageEventRepository,
	summaries billingdomain.UsageSummaryRepository,
	limits billingdomain.UsageLimitRepository,
	subscriptions identity.SubscriptionRepository,
	tx billingdomain.TxRunner,
	publisher shared.EventPublisher,
	meterCache billingdomain.UsageMeterCache,
	logger *zap.Logger,
) *UsageService {
	return &UsageService{
		events:        events,
		summaries:     summaries,
		limits:        limits,
		subscriptions: subscriptions,
		tx:            tx,
		publisher:     publisher,
		meterCache:    meterCache,
		meterTTL:      5 * time.Minute,
		logger:        logger,
	}
}

// SetMeterCacheTTL overrides how long cached dashboard meters may be stale
func (s *UsageService) SetMeterCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.meterTTL = ttl
	}
}

// RecordUsage validates and persists a usage event, then atomically
// increments the (tenant, type, period) summary. The summary's unit price
// is resolved from the tenant's current plan at first write of the period;
// tenants without a priced limit meter at zero.
func (s *UsageService) RecordUsage(ctx context.Context, input RecordUsageInput) (*billingdomain.UsageEvent, error) {
	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}

	event, err := billingdomain.NewUsageEvent(input.TenantID, input.Type, quantity, time.Now())
	if err != nil {
		return nil, err
	}
	if input.UserID != nil {
		event.WithUser(*input.UserID)
	}
	event.WithResource(input.ResourceID).WithMetadata(input.Metadata)

	unitPrice := s.resolveUnitPrice(ctx, input.TenantID, input.Type)

	summary, err := billingdomain.NewUsageSummary(
		input.TenantID, input.Type, quantity, unitPrice, event.PeriodStart, event.PeriodEnd)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		if err := s.events.Save(txCtx, event); err != nil {
			return err
		}
		return s.summaries.Increment(txCtx, summary)
	})
	if err != nil {
		s.logger.Error("failed to record usage",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("event_type", string(input.Type)),
			zap.Error(err))
		return nil, err
	}

	if s.meterCache != nil {
		if err := s.meterCache.Invalidate(ctx, input.TenantID); err != nil {
			s.logger.Warn("failed to invalidate usage meter cache", zap.Error(err))
		}
	}

	s.publishAsync(billingdomain.NewUsageRecordedEvent(event))

	return event, nil
}

// ListEvents returns the tenant's usage events matching the filter
func (s *UsageService) ListEvents(ctx context.Context, tenantID uuid.UUID, filter billingdomain.UsageEventFilter) (shared.Paginated[billingdomain.UsageEvent], error) {
	filter.TenantID = &tenantID
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	return s.events.FindByFilter(ctx, filter)
}

// CurrentPeriodUsage returns the event-log quantity for one type in the
// billing period containing now, via the meter cache when available. Limit
// enforcement must not use this; it reads the log directly.
func (s *UsageService) CurrentPeriodUsage(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType) (int64, error) {
	start, end := billingdomain.BillingPeriod(time.Now())

	if s.meterCache != nil {
		if qty, ok, err := s.meterCache.Get(ctx, tenantID, eventType, start); err == nil && ok {
			return qty, nil
		}
	}

	qty, err := s.events.SumQuantity(ctx, tenantID, eventType, start, end)
	if err != nil {
		return 0, err
	}

	if s.meterCache != nil {
		if err := s.meterCache.Set(ctx, tenantID, eventType, start, qty, s.meterTTL); err != nil {
			s.logger.Warn("failed to cache usage meter", zap.Error(err))
		}
	}

	return qty, nil
}

func (s *UsageService) resolveUnitPrice(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType) decimal.Decimal {
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("failed to load subscription for pricing",
				zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
		return decimal.Zero
	}

	limit, err := s.limits.FindByPlanAndType(ctx, sub.PlanID, eventType)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("failed to load usage limit for pricing",
				zap.String("plan_id", sub.PlanID), zap.Error(err))
		}
		return decimal.Zero
	}

	return limit.UnitPrice
}

func (s *UsageService) publishAsync(event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish usage event",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}()
}
