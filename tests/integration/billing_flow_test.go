package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appbilling "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/backoffice/backend/internal/infrastructure/persistence"
)

func newBillingService(db *gorm.DB) *appbilling.BillingService {
	return appbilling.NewBillingService(
		persistence.NewUsageSummaryRepository(db),
		persistence.NewUsageLimitRepository(db),
		persistence.NewInvoiceRepository(db),
		persistence.NewSubscriptionRepository(db),
		persistence.NewPlanRepository(db),
		persistence.NewTenantRepository(db),
		nil,
		zap.NewNop(),
	)
}

// TestBillingCalculation_Integration drives the full pipeline against a
// real database: record usage, price the period with the included/overage
// split, issue an invoice, and read it back.
func TestBillingCalculation_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	ctx := context.Background()
	usageSvc := newUsageService(testDB.DB)
	billingSvc := newBillingService(testDB.DB)
	summaryRepo := persistence.NewUsageSummaryRepository(testDB.DB)
	invoiceRepo := persistence.NewInvoiceRepository(testDB.DB)

	periodStart, _ := billing.BillingPeriod(time.Now())

	t.Run("Overage split and invoice generation", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		// Basic plan includes 1000 uploads at 0.01, overage at 0.02
		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeDocumentUpload,
			Quantity: 1200,
		})
		require.NoError(t, err)

		result, err := billingSvc.CalculateUsageBilling(ctx, tenantID, periodStart, true)
		require.NoError(t, err)
		require.NotNil(t, result.Breakdown)
		require.NotNil(t, result.Invoice)

		require.Len(t, result.Breakdown.Lines, 1)
		line := result.Breakdown.Lines[0]
		assert.Equal(t, int64(1000), line.IncludedQty)
		assert.Equal(t, int64(200), line.OverageQty)
		assert.Equal(t, "10", line.BaseCharge.String())
		assert.Equal(t, "4", line.OverageCharge.String())
		assert.Equal(t, "14", line.LineTotal.String())

		assert.Equal(t, "29.9", result.Breakdown.SubscriptionFee.String())
		assert.Equal(t, "43.9", result.Breakdown.GrandTotal.String())

		invoice := result.Invoice
		assert.Equal(t, billing.InvoiceStatusIssued, invoice.Status)
		assert.True(t, invoice.Total.Equal(result.Breakdown.GrandTotal))
		// Subscription fee line plus included and overage usage lines
		assert.Len(t, invoice.Lines, 3)

		// Persisted and retrievable by number
		found, err := invoiceRepo.FindByNumber(ctx, invoice.Number)
		require.NoError(t, err)
		assert.Equal(t, invoice.ID, found.ID)
		assert.True(t, invoice.Total.Equal(found.Total))
		assert.Len(t, found.Lines, 3)

		// The billed summary is linked to the invoice
		summary, err := summaryRepo.FindByTenantTypePeriod(ctx, tenantID, billing.EventTypeDocumentUpload, periodStart)
		require.NoError(t, err)
		assert.Equal(t, billing.SummaryStatusBilled, summary.Status)
		require.NotNil(t, summary.InvoiceID)
		assert.Equal(t, invoice.ID, *summary.InvoiceID)
	})

	t.Run("Usage within the included quota", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeAPICall,
			Quantity: 500,
		})
		require.NoError(t, err)

		result, err := billingSvc.CalculateUsageBilling(ctx, tenantID, periodStart, false)
		require.NoError(t, err)
		assert.Nil(t, result.Invoice)

		require.Len(t, result.Breakdown.Lines, 1)
		line := result.Breakdown.Lines[0]
		assert.Equal(t, int64(500), line.IncludedQty)
		assert.Equal(t, int64(0), line.OverageQty)
		// 500 calls at 0.001
		assert.Equal(t, "0.5", line.LineTotal.String())
	})

	t.Run("Period with no usage bills only the subscription fee", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		result, err := billingSvc.CalculateUsageBilling(ctx, tenantID, periodStart, false)
		require.NoError(t, err)
		assert.Empty(t, result.Breakdown.Lines)
		assert.True(t, result.Breakdown.UsageTotal.IsZero())
		assert.Equal(t, "29.9", result.Breakdown.GrandTotal.String())
	})

	t.Run("GetBillingSummary defaults to the current period", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "professional")

		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeStorageUsage,
			Quantity: 1024,
		})
		require.NoError(t, err)

		view, err := billingSvc.GetBillingSummary(ctx, tenantID, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "professional", view.PlanID)
		assert.Equal(t, "99.9", view.SubscriptionFee.String())
		require.Len(t, view.Lines, 1)
		// 1024 MB at 0.002 within the 51200 MB quota
		assert.Equal(t, "2.05", view.UsageTotal.String())
		assert.Equal(t, "101.95", view.EstimatedTotal.String())
	})

	t.Run("ListInvoices is tenant scoped", func(t *testing.T) {
		tenantA := seedBillableTenant(t, testDB, "basic")
		tenantB := seedBillableTenant(t, testDB, "basic")

		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantA,
			Type:     billing.EventTypeAPICall,
			Quantity: 100,
		})
		require.NoError(t, err)

		_, err = billingSvc.CalculateUsageBilling(ctx, tenantA, periodStart, true)
		require.NoError(t, err)

		pageA, err := billingSvc.ListInvoices(ctx, tenantA, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(1), pageA.Total)

		pageB, err := billingSvc.ListInvoices(ctx, tenantB, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(0), pageB.Total)
	})

	t.Run("Unknown tenant", func(t *testing.T) {
		_, err := billingSvc.CalculateUsageBilling(ctx, uuid.New(), periodStart, false)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
