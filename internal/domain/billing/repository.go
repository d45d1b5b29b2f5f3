package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/backoffice/backend/internal/domain/shared"
)

// UsageEventFilter narrows usage event queries
type UsageEventFilter struct {
	TenantID  *uuid.UUID
	Type      *EventType
	UserID    *uuid.UUID
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
}

// DefaultUsageEventFilter returns a filter with sane pagination defaults
func DefaultUsageEventFilter() UsageEventFilter {
	return UsageEventFilter{
		Page:     1,
		PageSize: 50,
		OrderBy:  "recorded_at",
		OrderDir: "desc",
	}
}

// UsageEventRepository persists the append-only usage event log
type UsageEventRepository interface {
	// Save persists a usage event
	Save(ctx context.Context, event *UsageEvent) error
	// FindByFilter returns events matching the filter, paginated
	FindByFilter(ctx context.Context, filter UsageEventFilter) (shared.Paginated[UsageEvent], error)
	// SumQuantity returns the total quantity for a tenant and event type in
	// a time window, computed from the event log
	SumQuantity(ctx context.Context, tenantID uuid.UUID, eventType EventType, start, end time.Time) (int64, error)
	// CountByTenant returns the number of events recorded for a tenant in a
	// time window
	CountByTenant(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (int64, error)
}

// UsageSummaryRepository persists per-period usage summaries. Increment is
// the write path used while recording usage and must be atomic at the store
// level: concurrent callers for the same (tenant, type, period) may never
// lose an update.
type UsageSummaryRepository interface {
	// Increment adds quantity to the summary for (tenant, type, period),
	// creating it with the given unit price if it does not exist yet
	Increment(ctx context.Context, summary *UsageSummary) error
	// FindByTenantTypePeriod returns the summary for one event type, or
	// shared.ErrNotFound
	FindByTenantTypePeriod(ctx context.Context, tenantID uuid.UUID, eventType EventType, periodStart time.Time) (*UsageSummary, error)
	// FindByTenantPeriod returns all summaries for a tenant in a period
	FindByTenantPeriod(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) ([]UsageSummary, error)
	// Update persists status or amount changes to an existing summary
	Update(ctx context.Context, summary *UsageSummary) error
}

// UsageLimitRepository persists plan usage limits
type UsageLimitRepository interface {
	// FindByPlan returns all active limits configured for a plan
	FindByPlan(ctx context.Context, planID string) ([]UsageLimit, error)
	// FindByPlanAndType returns the active limit for one event type, or
	// shared.ErrNotFound when the plan does not meter that type
	FindByPlanAndType(ctx context.Context, planID string, eventType EventType) (*UsageLimit, error)
	// Save creates or updates a limit
	Save(ctx context.Context, limit *UsageLimit) error
	// Delete removes a limit
	Delete(ctx context.Context, id uuid.UUID) error
}

// InvoiceRepository persists invoices
type InvoiceRepository interface {
	Save(ctx context.Context, invoice *Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByNumber(ctx context.Context, number string) (*Invoice, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[Invoice], error)
}

// TxRunner executes fn inside a single storage transaction. Repositories
// resolved through the transactional context observe each other's writes
// and commit or roll back together.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UsageMeterCache caches computed usage meters for dashboard reads. Limit
// enforcement never reads from this cache; it recomputes from the event log.
type UsageMeterCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, eventType EventType, periodStart time.Time) (int64, bool, error)
	Set(ctx context.Context, tenantID uuid.UUID, eventType EventType, periodStart time.Time, quantity int64, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}
