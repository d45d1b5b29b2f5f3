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

// BillingResult is the outcome of a billing run for one tenant and period
type BillingResult struct {
	Breakdown *billingdomain.BillingBreakdown
	Invoice   *billingdomain.Invoice
}

// BillingSummaryView is the dashboard view of a tenant's current charges
type BillingSummaryView struct {
	TenantID        uuid.UUID                      `json:"tenant_id"`
	PlanID          string                         `json:"plan_id"`
	PlanName        string                         `json:"plan_name"`
	PeriodStart     time.Time                      `json:"period_start"`
	PeriodEnd       time.Time                      `json:"period_end"`
	SubscriptionFee decimal.Decimal                `json:"subscription_fee"`
	Lines           []billingdomain.LineBreakdown  `json:"lines"`
	UsageTotal      decimal.Decimal                `json:"usage_total"`
	EstimatedTotal  decimal.Decimal                `json:"estimated_total"`
}

// BillingService aggregates a period's usage summaries into billable
// amounts with the included/overage split and optionally issues an invoice.
type BillingService struct {
	summaries     billingdomain.UsageSummaryRepository
	limits        billingdomain.UsageLimitRepository
	invoices      billingdomain.InvoiceRepository
	subscriptions identity.SubscriptionRepository
	plans         identity.PlanRepository
	tenants       identity.TenantRepository
	publisher     shared.EventPublisher
	logger        *zap.Logger
}

// NewBillingService creates a billing aggregation service
func NewBillingService(
	summaries billingdomain.UsageSummaryRepository,
	limits billingdomain.UsageLimitRepository,
	invoices billingdomain.InvoiceRepository,
	subscriptions identity.SubscriptionRepository,
	plans identity.PlanRepository,
	tenants identity.TenantRepository,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *BillingService {
	return &BillingService{
		summaries:     summaries,
		limits:        limits,
		invoices:      invoices,
		subscriptions: subscriptions,
		plans:         plans,
		tenants:       tenants,
		publisher:     publisher,
		logger:        logger,
	}
}

// CalculateUsageBilling prices the tenant's usage for the billing period
// starting at periodStart. Each summary is split into included and overage
// portions against the plan limits and the flat subscription fee is added
// on top. With generateInvoice set, an invoice is issued and the summaries
// are marked billed.
//
// Moving summaries through calculated/billed is best-effort bookkeeping: a
// failure there is logged and flagged on the summary but does not void the
// returned amounts or the invoice.
func (s *BillingService) CalculateUsageBilling(ctx context.Context, tenantID uuid.UUID, periodStart time.Time, generateInvoice bool) (*BillingResult, error) {
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.FindByCode(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	limits, err := s.limitsByType(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	summaries, err := s.summaries.FindByTenantPeriod(ctx, tenantID, periodStart)
	if err != nil {
		return nil, err
	}

	start, end := billingdomain.BillingPeriod(periodStart)
	breakdown := &billingdomain.BillingBreakdown{
		TenantID:        tenantID,
		PeriodStart:     start,
		PeriodEnd:       end,
		SubscriptionFee: plan.MonthlyPrice,
		UsageTotal:      decimal.Zero,
	}

	for i := range summaries {
		summary := &summaries[i]
		limit := limits[summary.Type]
		line := billingdomain.BuildLineBreakdown(summary.Type, summary.TotalQty, limit)
		breakdown.Lines = append(breakdown.Lines, line)
		breakdown.UsageTotal = breakdown.UsageTotal.Add(line.LineTotal)

		s.markCalculated(ctx, summary, line.LineTotal)
	}
	breakdown.GrandTotal = breakdown.SubscriptionFee.Add(breakdown.UsageTotal).Round(2)

	result := &BillingResult{Breakdown: breakdown}
	if !generateInvoice {
		return result, nil
	}

	invoice, err := billingdomain.NewInvoiceFromBreakdown(breakdown, plan.Name, time.Now())
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Save(ctx, invoice); err != nil {
		s.markFailed(ctx, summaries)
		return nil, err
	}

	for i := range summaries {
		s.markBilled(ctx, &summaries[i], invoice)
	}

	s.publishAsync(billingdomain.NewInvoiceGeneratedEvent(invoice))

	result.Invoice = invoice
	return result, nil
}

// GetBillingSummary returns the current-period charge estimate for the
// dashboard. periodStart zero value means the period containing now.
func (s *BillingService) GetBillingSummary(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) (*BillingSummaryView, error) {
	if periodStart.IsZero() {
		periodStart, _ = billingdomain.BillingPeriod(time.Now())
	}

	result, err := s.CalculateUsageBilling(ctx, tenantID, periodStart, false)
	if err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.FindByCode(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	return &BillingSummaryView{
		TenantID:        tenantID,
		PlanID:          plan.Code,
		PlanName:        plan.Name,
		PeriodStart:     result.Breakdown.PeriodStart,
		PeriodEnd:       result.Breakdown.PeriodEnd,
		SubscriptionFee: result.Breakdown.SubscriptionFee,
		Lines:           result.Breakdown.Lines,
		UsageTotal:      result.Breakdown.UsageTotal,
		EstimatedTotal:  result.Breakdown.GrandTotal,
	}, nil
}

// ListInvoices returns the tenant's invoices, newest first
func (s *BillingService) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[billingdomain.Invoice], error) {
	return s.invoices.FindByTenant(ctx, tenantID, filter)
}

func (s *BillingService) limitsByType(ctx context.Context, planID string) (map[billingdomain.EventType]*billingdomain.UsageLimit, error) {
	limits, err := s.limits.FindByPlan(ctx, planID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	byType := make(map[billingdomain.EventType]*billingdomain.UsageLimit, len(limits))
	for i := range limits {
		byType[limits[i].Type] = &limits[i]
	}
	return byType, nil
}

func (s *BillingService) markCalculated(ctx context.Context, summary *billingdomain.UsageSummary, amount decimal.Decimal) {
	if summary.Status == billingdomain.SummaryStatusBilled {
		return
	}
	if err := summary.MarkCalculated(amount); err != nil {
		s.logger.Warn("failed to mark summary calculated",
			zap.String("summary_id", summary.ID.String()), zap.Error(err))
		return
	}
	if err := s.summaries.Update(ctx, summary); err != nil {
		s.logger.Warn("failed to persist calculated summary",
			zap.String("summary_id", summary.ID.String()), zap.Error(err))
	}
}

func (s *BillingService) markBilled(ctx context.Context, summary *billingdomain.UsageSummary, invoice *billingdomain.Invoice) {
	if err := summary.MarkBilled(invoice.ID, invoice.IssuedAt); err != nil {
		return
	}
	if err := s.summaries.Update(ctx, summary); err != nil {
		s.logger.Warn("failed to persist billed summary",
			zap.String("summary_id", summary.ID.String()),
			zap.String("invoice_number", invoice.Number),
			zap.Error(err))
	}
}

func (s *BillingService) markFailed(ctx context.Context, summaries []billingdomain.UsageSummary) {
	for i := range summaries {
		summaries[i].MarkFailed()
		if err := s.summaries.Update(ctx, &summaries[i]); err != nil {
			s.logger.Warn("failed to flag summary after billing error",
				zap.String("summary_id", summaries[i].ID.String()), zap.Error(err))
		}
	}
}

func (s *BillingService) publishAsync(event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish billing event",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}()
}
