package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/backoffice/backend/internal/domain/shared"
)

// UsageEvent records a single metered action performed by a tenant.
// Events are immutable once recorded; they form the authoritative log
// that summaries and limit checks are derived from.
type UsageEvent struct {
	shared.BaseEntity
	TenantID    uuid.UUID
	UserID      *uuid.UUID
	Type        EventType
	ResourceID  *string
	Quantity    int64
	Metadata    map[string]interface{}
	PeriodStart time.Time
	PeriodEnd   time.Time
	RecordedAt  time.Time
}

// NewUsageEvent creates a usage event for the billing period containing ts.
// Quantity must be positive; storage events carry megabytes, all other
// types carry a count.
func NewUsageEvent(tenantID uuid.UUID, eventType EventType, quantity int64, ts time.Time) (*UsageEvent, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if !eventType.IsValid() {
		return nil, shared.NewDomainError("INVALID_EVENT_TYPE", "Unknown usage event type: "+string(eventType))
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	start, end := BillingPeriod(ts)
	return &UsageEvent{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    tenantID,
		Type:        eventType,
		Quantity:    quantity,
		PeriodStart: start,
		PeriodEnd:   end,
		RecordedAt:  ts,
	}, nil
}

// WithUser attaches the acting user
func (e *UsageEvent) WithUser(userID uuid.UUID) *UsageEvent {
	e.UserID = &userID
	return e
}

// WithResource attaches the identifier of the resource acted on
func (e *UsageEvent) WithResource(resourceID string) *UsageEvent {
	if resourceID != "" {
		e.ResourceID = &resourceID
	}
	return e
}

// WithMetadata attaches arbitrary context to the event
func (e *UsageEvent) WithMetadata(metadata map[string]interface{}) *UsageEvent {
	e.Metadata = metadata
	return e
}

// BillingPeriod returns the calendar-month billing period containing ts.
// Periods run from the first instant of the month to the last nanosecond
// before the next month, in the timezone of ts. Usage is attributed to the
// month it is processed in, not to a subscription anniversary cycle.
func BillingPeriod(ts time.Time) (start, end time.Time) {
	start = time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, ts.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}
