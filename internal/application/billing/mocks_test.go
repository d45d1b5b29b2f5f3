package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

type mockUsageEventRepository struct {
	mock.Mock
}

func (m *mockUsageEventRepository) Save(ctx context.Context, event *billingdomain.UsageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockUsageEventRepository) FindByFilter(ctx context.Context, filter billingdomain.UsageEventFilter) (shared.Paginated[billingdomain.UsageEvent], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[billingdomain.UsageEvent]), args.Error(1)
}

func (m *mockUsageEventRepository) SumQuantity(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType, start, end time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, eventType, start, end)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUsageEventRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, start, end)
	return args.Get(0).(int64), args.Error(1)
}

type mockUsageSummaryRepository struct {
	mock.Mock
}

func (m *mockUsageSummaryRepository) Increment(ctx context.Context, summary *billingdomain.UsageSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *mockUsageSummaryRepository) FindByTenantTypePeriod(ctx context.Context, tenantID uuid.UUID, eventType billingdomain.EventType, periodStart time.Time) (*billingdomain.UsageSummary, error) {
	args := m.Called(ctx, tenantID, eventType, periodStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.UsageSummary), args.Error(1)
}

func (m *mockUsageSummaryRepository) FindByTenantPeriod(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) ([]billingdomain.UsageSummary, error) {
	args := m.Called(ctx, tenantID, periodStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billingdomain.UsageSummary), args.Error(1)
}

func (m *mockUsageSummaryRepository) Update(ctx context.Context, summary *billingdomain.UsageSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

type mockUsageLimitRepository struct {
	mock.Mock
}

func (m *mockUsageLimitRepository) FindByPlan(ctx context.Context, planID string) ([]billingdomain.UsageLimit, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billingdomain.UsageLimit), args.Error(1)
}

func (m *mockUsageLimitRepository) FindByPlanAndType(ctx context.Context, planID string, eventType billingdomain.EventType) (*billingdomain.UsageLimit, error) {
	args := m.Called(ctx, planID, eventType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.UsageLimit), args.Error(1)
}

func (m *mockUsageLimitRepository) Save(ctx context.Context, limit *billingdomain.UsageLimit) error {
	args := m.Called(ctx, limit)
	return args.Error(0)
}

func (m *mockUsageLimitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockInvoiceRepository struct {
	mock.Mock
}

func (m *mockInvoiceRepository) Save(ctx context.Context, invoice *billingdomain.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *mockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billingdomain.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) FindByNumber(ctx context.Context, number string) (*billingdomain.Invoice, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[billingdomain.Invoice], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[billingdomain.Invoice]), args.Error(1)
}

type mockTenantRepository struct {
	mock.Mock
}

func (m *mockTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *mockTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *mockTenantRepository) FindByCode(ctx context.Context, code string) (*identity.Tenant, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *mockTenantRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*identity.Tenant, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
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

type mockUserCounter struct {
	mock.Mock
}

func (m *mockUserCounter) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

type mockPaymentGateway struct {
	mock.Mock
}

func (m *mockPaymentGateway) EnsureCustomer(ctx context.Context, tenantID uuid.UUID, name, email string) (string, error) {
	args := m.Called(ctx, tenantID, name, email)
	return args.String(0), args.Error(1)
}

func (m *mockPaymentGateway) CreatePaymentIntent(ctx context.Context, customerID string, req billingdomain.CreatePaymentIntentRequest) (*billingdomain.PaymentIntent, error) {
	args := m.Called(ctx, customerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.PaymentIntent), args.Error(1)
}

func (m *mockPaymentGateway) GetPaymentIntent(ctx context.Context, intentID string) (*billingdomain.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.PaymentIntent), args.Error(1)
}

// passthroughTx runs the function without a real transaction
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
