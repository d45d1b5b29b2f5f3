package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/backoffice/backend/internal/infrastructure/persistence"
)

// TestUsageEventRepository_Integration tests the usage event log against a real PostgreSQL database
func TestUsageEventRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	repo := persistence.NewUsageEventRepository(testDB.DB)
	ctx := context.Background()
	tenantID := uuid.New()

	testDB.CreateTestTenantWithUUID(tenantID)

	t.Run("Save and FindByFilter", func(t *testing.T) {
		event, err := billing.NewUsageEvent(tenantID, billing.EventTypeAPICall, 1, time.Now())
		require.NoError(t, err)
		event.WithResource("GET /api/v1/usage/limits")

		require.NoError(t, repo.Save(ctx, event))

		filter := billing.DefaultUsageEventFilter()
		filter.TenantID = &tenantID

		page, err := repo.FindByFilter(ctx, filter)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, event.ID, page.Items[0].ID)
		assert.Equal(t, billing.EventTypeAPICall, page.Items[0].Type)
		require.NotNil(t, page.Items[0].ResourceID)
		assert.Equal(t, "GET /api/v1/usage/limits", *page.Items[0].ResourceID)
	})

	t.Run("SumQuantity computes from the event log", func(t *testing.T) {
		sumTenant := uuid.New()
		testDB.CreateTestTenantWithUUID(sumTenant)

		now := time.Now()
		for _, qty := range []int64{10, 25, 65} {
			event, err := billing.NewUsageEvent(sumTenant, billing.EventTypeStorageUsage, qty, now)
			require.NoError(t, err)
			require.NoError(t, repo.Save(ctx, event))
		}

		// A different event type in the same window must not count
		other, err := billing.NewUsageEvent(sumTenant, billing.EventTypeAPICall, 999, now)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, other))

		start, end := billing.BillingPeriod(now)
		total, err := repo.SumQuantity(ctx, sumTenant, billing.EventTypeStorageUsage, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(100), total)
	})

	t.Run("SumQuantity is tenant scoped", func(t *testing.T) {
		tenantA := uuid.New()
		tenantB := uuid.New()
		testDB.CreateTestTenantWithUUID(tenantA)
		testDB.CreateTestTenantWithUUID(tenantB)

		now := time.Now()
		eventA, err := billing.NewUsageEvent(tenantA, billing.EventTypeDocumentUpload, 7, now)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, eventA))

		eventB, err := billing.NewUsageEvent(tenantB, billing.EventTypeDocumentUpload, 3, now)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, eventB))

		start, end := billing.BillingPeriod(now)
		totalA, err := repo.SumQuantity(ctx, tenantA, billing.EventTypeDocumentUpload, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(7), totalA)

		totalB, err := repo.SumQuantity(ctx, tenantB, billing.EventTypeDocumentUpload, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(3), totalB)
	})

	t.Run("CountByTenant", func(t *testing.T) {
		countTenant := uuid.New()
		testDB.CreateTestTenantWithUUID(countTenant)

		now := time.Now()
		for i := 0; i < 4; i++ {
			event, err := billing.NewUsageEvent(countTenant, billing.EventTypeAPICall, 1, now)
			require.NoError(t, err)
			require.NoError(t, repo.Save(ctx, event))
		}

		start, end := billing.BillingPeriod(now)
		count, err := repo.CountByTenant(ctx, countTenant, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})
}

// TestUsageSummaryRepository_Integration tests the summary upsert path,
// including concurrent increments against the same row.
func TestUsageSummaryRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	repo := persistence.NewUsageSummaryRepository(testDB.DB)
	ctx := context.Background()
	tenantID := uuid.New()

	testDB.CreateTestTenantWithUUID(tenantID)

	now := time.Now()
	periodStart, periodEnd := billing.BillingPeriod(now)
	unitPrice := decimal.NewFromFloat(0.0010)

	t.Run("Increment creates then accumulates", func(t *testing.T) {
		first, err := billing.NewUsageSummary(tenantID, billing.EventTypeAPICall, 10, unitPrice, periodStart, periodEnd)
		require.NoError(t, err)
		require.NoError(t, repo.Increment(ctx, first))

		second, err := billing.NewUsageSummary(tenantID, billing.EventTypeAPICall, 15, unitPrice, periodStart, periodEnd)
		require.NoError(t, err)
		require.NoError(t, repo.Increment(ctx, second))

		found, err := repo.FindByTenantTypePeriod(ctx, tenantID, billing.EventTypeAPICall, periodStart)
		require.NoError(t, err)
		assert.Equal(t, int64(25), found.TotalQty)
		assert.True(t, unitPrice.Equal(found.UnitPrice))
	})

	t.Run("Concurrent increments never lose updates", func(t *testing.T) {
		concTenant := uuid.New()
		testDB.CreateTestTenantWithUUID(concTenant)

		const workers = 10
		const perWorker = 5

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					summary, err := billing.NewUsageSummary(
						concTenant, billing.EventTypeComplianceCheck, 1, unitPrice, periodStart, periodEnd)
					if err != nil {
						errs <- err
						return
					}
					if err := repo.Increment(ctx, summary); err != nil {
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

		found, err := repo.FindByTenantTypePeriod(ctx, concTenant, billing.EventTypeComplianceCheck, periodStart)
		require.NoError(t, err)
		assert.Equal(t, int64(workers*perWorker), found.TotalQty)
	})

	t.Run("FindByTenantTypePeriod returns ErrNotFound for missing summary", func(t *testing.T) {
		_, err := repo.FindByTenantTypePeriod(ctx, uuid.New(), billing.EventTypeAPICall, periodStart)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("FindByTenantPeriod returns all types", func(t *testing.T) {
		multiTenant := uuid.New()
		testDB.CreateTestTenantWithUUID(multiTenant)

		for _, et := range []billing.EventType{billing.EventTypeAPICall, billing.EventTypeDocumentUpload} {
			summary, err := billing.NewUsageSummary(multiTenant, et, 5, unitPrice, periodStart, periodEnd)
			require.NoError(t, err)
			require.NoError(t, repo.Increment(ctx, summary))
		}

		summaries, err := repo.FindByTenantPeriod(ctx, multiTenant, periodStart)
		require.NoError(t, err)
		assert.Len(t, summaries, 2)
	})
}
