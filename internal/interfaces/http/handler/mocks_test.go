package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

type mockUsageRecorder struct {
	mock.Mock
}

func (m *mockUsageRecorder) RecordUsage(ctx context.Context, input billingapp.RecordUsageInput) (*billing.UsageEvent, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UsageEvent), args.Error(1)
}

func (m *mockUsageRecorder) ListEvents(ctx context.Context, tenantID uuid.UUID, filter billing.UsageEventFilter) (shared.Paginated[billing.UsageEvent], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[billing.UsageEvent]), args.Error(1)
}

type mockLimitChecker struct {
	mock.Mock
}

func (m *mockLimitChecker) EnforceLimit(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType) error {
	args := m.Called(ctx, tenantID, eventType)
	return args.Error(0)
}

func (m *mockLimitChecker) CheckAllLimits(ctx context.Context, tenantID uuid.UUID) ([]billing.LimitCheckResult, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.LimitCheckResult), args.Error(1)
}

type mockUsageExporter struct {
	mock.Mock
}

func (m *mockUsageExporter) ExportCSV(ctx context.Context, tenantID uuid.UUID, filter billing.UsageEventFilter) ([]byte, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockUsageExporter) ExportXLSX(ctx context.Context, tenantID uuid.UUID, filter billing.UsageEventFilter) ([]byte, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockBillingCalculator struct {
	mock.Mock
}

func (m *mockBillingCalculator) CalculateUsageBilling(ctx context.Context, tenantID uuid.UUID, periodStart time.Time, generateInvoice bool) (*billingapp.BillingResult, error) {
	args := m.Called(ctx, tenantID, periodStart, generateInvoice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.BillingResult), args.Error(1)
}

func (m *mockBillingCalculator) GetBillingSummary(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) (*billingapp.BillingSummaryView, error) {
	args := m.Called(ctx, tenantID, periodStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.BillingSummaryView), args.Error(1)
}

func (m *mockBillingCalculator) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[billing.Invoice], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[billing.Invoice]), args.Error(1)
}

type mockPlanChanger struct {
	mock.Mock
}

func (m *mockPlanChanger) InitiatePlanChange(ctx context.Context, tenantID uuid.UUID, planID string) (*billingapp.PlanChangeResult, error) {
	args := m.Called(ctx, tenantID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.PlanChangeResult), args.Error(1)
}

func (m *mockPlanChanger) VerifyPayment(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*billingapp.PlanChangeResult, error) {
	args := m.Called(ctx, tenantID, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.PlanChangeResult), args.Error(1)
}

type mockWebhookProcessor struct {
	mock.Mock
}

func (m *mockWebhookProcessor) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.WebhookResult), args.Error(1)
}

type mockPlanRepository struct {
	mock.Mock
}

func (m *mockPlanRepository) Save(ctx context.Context, plan *identity.Plan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *mockPlanRepository) FindByCode(ctx context.Context, code string) (*identity.Plan, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Plan), args.Error(1)
}

func (m *mockPlanRepository) FindActive(ctx context.Context) ([]identity.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.Plan), args.Error(1)
}

type mockSubscriptionRepository struct {
	mock.Mock
}

func (m *mockSubscriptionRepository) Save(ctx context.Context, subscription *identity.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *mockSubscriptionRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*identity.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*identity.Subscription, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Subscription), args.Error(1)
}
