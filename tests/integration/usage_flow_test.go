package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appbilling "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/infrastructure/persistence"
)

func newUsageService(db *gorm.DB) *appbilling.UsageService {
	return appbilling.NewUsageService(
		persistence.NewUsageEventRepository(db),
		persistence.NewUsageSummaryRepository(db),
		persistence.NewUsageLimitRepository(db),
		persistence.NewSubscriptionRepository(db),
		persistence.NewGormTxRunner(db),
		nil, // no event bus in integration tests
		nil, // no meter cache
		zap.NewNop(),
	)
}

func newLimitService(db *gorm.DB) *appbilling.LimitService {
	return appbilling.NewLimitService(
		persistence.NewUsageLimitRepository(db),
		persistence.NewUsageEventRepository(db),
		persistence.NewSubscriptionRepository(db),
		persistence.NewTenantRepository(db),
		nil,
		zap.NewNop(),
	)
}

// seedBillableTenant creates a tenant subscribed to the given seeded plan
// for the billing period containing now.
func seedBillableTenant(t *testing.T, testDB *TestDB, planCode string) uuid.UUID {
	t.Helper()

	tenantID := uuid.New()
	testDB.CreateTestTenantWithUUID(tenantID)

	periodStart, periodEnd := billing.BillingPeriod(time.Now())
	testDB.CreateTestSubscription(uuid.New(), tenantID, planCode, periodStart, periodEnd)
	return tenantID
}

// TestUsageRecording_Integration exercises the full recording path: event
// log append plus summary increment in one transaction, priced from the
// tenant's plan.
func TestUsageRecording_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	ctx := context.Background()
	svc := newUsageService(testDB.DB)
	eventRepo := persistence.NewUsageEventRepository(testDB.DB)
	summaryRepo := persistence.NewUsageSummaryRepository(testDB.DB)

	t.Run("RecordUsage writes event and summary together", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		event, err := svc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeAPICall,
			Quantity: 3,
		})
		require.NoError(t, err)
		require.NotNil(t, event)

		start, end := billing.BillingPeriod(time.Now())
		total, err := eventRepo.SumQuantity(ctx, tenantID, billing.EventTypeAPICall, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)

		summary, err := summaryRepo.FindByTenantTypePeriod(ctx, tenantID, billing.EventTypeAPICall, start)
		require.NoError(t, err)
		assert.Equal(t, int64(3), summary.TotalQty)
		// Unit price resolved from the basic plan's API_CALL limit
		assert.Equal(t, "0.001", summary.UnitPrice.String())
	})

	t.Run("Quantity defaults to one", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		_, err := svc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeDocumentUpload,
		})
		require.NoError(t, err)

		start, _ := billing.BillingPeriod(time.Now())
		summary, err := summaryRepo.FindByTenantTypePeriod(ctx, tenantID, billing.EventTypeDocumentUpload, start)
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.TotalQty)
	})

	t.Run("Concurrent recording keeps event log and summary consistent", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		const workers = 8
		const perWorker = 5

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					_, err := svc.RecordUsage(ctx, appbilling.RecordUsageInput{
						TenantID: tenantID,
						Type:     billing.EventTypeComplianceCheck,
						Quantity: 2,
					})
					if err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		want := int64(workers * perWorker * 2)
		start, end := billing.BillingPeriod(time.Now())

		logTotal, err := eventRepo.SumQuantity(ctx, tenantID, billing.EventTypeComplianceCheck, start, end)
		require.NoError(t, err)
		assert.Equal(t, want, logTotal)

		summary, err := summaryRepo.FindByTenantTypePeriod(ctx, tenantID, billing.EventTypeComplianceCheck, start)
		require.NoError(t, err)
		assert.Equal(t, want, summary.TotalQty)
	})

	t.Run("Rejects invalid event type", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "basic")

		_, err := svc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventType("NOT_A_TYPE"),
			Quantity: 1,
		})
		assert.Error(t, err)
	})
}

// TestLimitEnforcement_Integration verifies that limit checks recompute
// from the event log and that hard limits on the free plan are enforced.
func TestLimitEnforcement_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	ctx := context.Background()
	usageSvc := newUsageService(testDB.DB)
	limitSvc := newLimitService(testDB.DB)

	t.Run("Under the limit", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "free")

		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeAPICall,
			Quantity: 100,
		})
		require.NoError(t, err)

		result, err := limitSvc.CheckLimit(ctx, tenantID, billing.EventTypeAPICall)
		require.NoError(t, err)
		assert.Equal(t, int64(100), result.CurrentUsage)
		require.NotNil(t, result.Limit)
		assert.Equal(t, int64(1000), *result.Limit)
		assert.False(t, result.OverLimit)
		require.NotNil(t, result.Remaining)
		assert.Equal(t, int64(900), *result.Remaining)

		assert.NoError(t, limitSvc.EnforceLimit(ctx, tenantID, billing.EventTypeAPICall))
	})

	t.Run("Over the limit", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "free")

		// Free plan allows 50 compliance checks per period
		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantID,
			Type:     billing.EventTypeComplianceCheck,
			Quantity: 60,
		})
		require.NoError(t, err)

		result, err := limitSvc.CheckLimit(ctx, tenantID, billing.EventTypeComplianceCheck)
		require.NoError(t, err)
		assert.True(t, result.OverLimit)

		err = limitSvc.EnforceLimit(ctx, tenantID, billing.EventTypeComplianceCheck)
		var quotaErr *appbilling.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, int64(60), quotaErr.Result.CurrentUsage)
	})

	t.Run("Unmetered type is unlimited", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "free")

		// The free plan configures no USER_CREATION limit
		result, err := limitSvc.CheckLimit(ctx, tenantID, billing.EventTypeUserCreation)
		require.NoError(t, err)
		assert.True(t, result.Unlimited)
		assert.NoError(t, limitSvc.EnforceLimit(ctx, tenantID, billing.EventTypeUserCreation))
	})

	t.Run("CheckAllLimits covers every configured type", func(t *testing.T) {
		tenantID := seedBillableTenant(t, testDB, "free")

		results, err := limitSvc.CheckAllLimits(ctx, tenantID)
		require.NoError(t, err)
		// Migration seeds five limits for the free plan
		assert.Len(t, results, 5)
	})

	t.Run("Usage of another tenant does not count", func(t *testing.T) {
		tenantA := seedBillableTenant(t, testDB, "free")
		tenantB := seedBillableTenant(t, testDB, "free")

		_, err := usageSvc.RecordUsage(ctx, appbilling.RecordUsageInput{
			TenantID: tenantA,
			Type:     billing.EventTypeDocumentUpload,
			Quantity: 150,
		})
		require.NoError(t, err)

		resultB, err := limitSvc.CheckLimit(ctx, tenantB, billing.EventTypeDocumentUpload)
		require.NoError(t, err)
		assert.Equal(t, int64(0), resultB.CurrentUsage)
		assert.False(t, resultB.OverLimit)
	})
}
