package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/backoffice/backend/internal/domain/shared"
)

// SummaryStatus tracks the billing lifecycle of a usage summary
type SummaryStatus string

const (
	// SummaryStatusPending means usage is still accumulating, no amount calculated
	SummaryStatusPending SummaryStatus = "pending"
	// SummaryStatusCalculated means the billable amount has been computed
	SummaryStatusCalculated SummaryStatus = "calculated"
	// SummaryStatusBilled means the summary is attached to an issued invoice
	SummaryStatusBilled SummaryStatus = "billed"
	// SummaryStatusFailed means billing the summary failed and needs review
	SummaryStatusFailed SummaryStatus = "failed"
)

// UsageSummary is the running per-period aggregate for one tenant and event
// type. There is exactly one summary per (tenant, event type, period start);
// the persistence layer increments TotalQuantity atomically so concurrent
// recorders never lose updates. TotalQuantity only grows within a period.
type UsageSummary struct {
	shared.BaseAggregateRoot
	TenantID    uuid.UUID
	Type        EventType
	TotalQty    int64
	UnitPrice   decimal.Decimal
	TotalAmount decimal.Decimal
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      SummaryStatus
	BilledAt    *time.Time
	InvoiceID   *uuid.UUID
}

// NewUsageSummary creates a pending summary seeded with an initial quantity.
// The running amount starts at quantity times unit price; the authoritative
// overage-aware amount is recomputed when the period is billed.
func NewUsageSummary(tenantID uuid.UUID, eventType EventType, quantity int64, unitPrice decimal.Decimal, periodStart, periodEnd time.Time) (*UsageSummary, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if !eventType.IsValid() {
		return nil, shared.NewDomainError("INVALID_EVENT_TYPE", "Unknown usage event type: "+string(eventType))
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	return &UsageSummary{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          tenantID,
		Type:              eventType,
		TotalQty:          quantity,
		UnitPrice:         unitPrice,
		TotalAmount:       unitPrice.Mul(decimal.NewFromInt(quantity)),
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		Status:            SummaryStatusPending,
	}, nil
}

// MarkCalculated records the computed billable amount for the period
func (s *UsageSummary) MarkCalculated(amount decimal.Decimal) error {
	if s.Status == SummaryStatusBilled {
		return shared.ErrInvalidState
	}
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "Billable amount cannot be negative")
	}
	s.TotalAmount = amount.Round(2)
	s.Status = SummaryStatusCalculated
	s.UpdatedAt = time.Now()
	return nil
}

// MarkBilled attaches the summary to an invoice. Billing is terminal.
func (s *UsageSummary) MarkBilled(invoiceID uuid.UUID, at time.Time) error {
	if s.Status == SummaryStatusBilled {
		return shared.ErrInvalidState
	}
	s.Status = SummaryStatusBilled
	s.InvoiceID = &invoiceID
	s.BilledAt = &at
	s.UpdatedAt = time.Now()
	return nil
}

// MarkFailed flags the summary for manual review after a billing error
func (s *UsageSummary) MarkFailed() {
	if s.Status != SummaryStatusBilled {
		s.Status = SummaryStatusFailed
		s.UpdatedAt = time.Now()
	}
}

// Amount returns quantity * unit price rounded to cents. Used for simple
// flat-rate pricing; overage-aware amounts come from the billing breakdown.
func (s *UsageSummary) Amount() decimal.Decimal {
	return s.UnitPrice.Mul(decimal.NewFromInt(s.TotalQty)).Round(2)
}
