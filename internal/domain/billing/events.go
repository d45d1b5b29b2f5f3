package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/backoffice/backend/internal/domain/shared"
)

// Domain event types published by the billing context
const (
	EventUsageRecorded       = "billing.usage_recorded"
	EventUsageLimitWarning   = "billing.usage_limit_warning"
	EventUsageLimitExceeded  = "billing.usage_limit_exceeded"
	EventInvoiceGenerated    = "billing.invoice_generated"
	EventPlanChangeRequested = "billing.plan_change_requested"
	EventPlanChangeApplied   = "billing.plan_change_applied"
	EventPlanChangeFailed    = "billing.plan_change_failed"
)

// UsageRecordedEvent is published after a usage event is persisted
type UsageRecordedEvent struct {
	shared.BaseDomainEvent
	UsageType EventType `json:"usage_type"`
	Quantity  int64     `json:"quantity"`
}

// NewUsageRecordedEvent creates a usage recorded event
func NewUsageRecordedEvent(event *UsageEvent) *UsageRecordedEvent {
	return &UsageRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventUsageRecorded, "UsageEvent", event.ID, event.TenantID),
		UsageType:       event.Type,
		Quantity:        event.Quantity,
	}
}

// UsageLimitWarningEvent is published when usage crosses the warning threshold
type UsageLimitWarningEvent struct {
	shared.BaseDomainEvent
	UsageType    EventType `json:"usage_type"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        int64     `json:"limit"`
	PercentUsed  float64   `json:"percent_used"`
}

// NewUsageLimitWarningEvent creates a limit warning event
func NewUsageLimitWarningEvent(tenantID uuid.UUID, result LimitCheckResult) *UsageLimitWarningEvent {
	var limit int64
	if result.Limit != nil {
		limit = *result.Limit
	}
	return &UsageLimitWarningEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventUsageLimitWarning, "UsageSummary", tenantID, tenantID),
		UsageType:       result.Type,
		CurrentUsage:    result.CurrentUsage,
		Limit:           limit,
		PercentUsed:     result.PercentUsed,
	}
}

// UsageLimitExceededEvent is published when usage goes beyond the plan limit
type UsageLimitExceededEvent struct {
	shared.BaseDomainEvent
	UsageType    EventType `json:"usage_type"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        int64     `json:"limit"`
}

// NewUsageLimitExceededEvent creates a limit exceeded event
func NewUsageLimitExceededEvent(tenantID uuid.UUID, result LimitCheckResult) *UsageLimitExceededEvent {
	var limit int64
	if result.Limit != nil {
		limit = *result.Limit
	}
	return &UsageLimitExceededEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventUsageLimitExceeded, "UsageSummary", tenantID, tenantID),
		UsageType:       result.Type,
		CurrentUsage:    result.CurrentUsage,
		Limit:           limit,
	}
}

// InvoiceGeneratedEvent is published after an invoice is issued
type InvoiceGeneratedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
}

// NewInvoiceGeneratedEvent creates an invoice generated event
func NewInvoiceGeneratedEvent(invoice *Invoice) *InvoiceGeneratedEvent {
	return &InvoiceGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventInvoiceGenerated, "Invoice", invoice.ID, invoice.TenantID),
		InvoiceNumber:   invoice.Number,
		Total:           invoice.Total,
	}
}

// PlanChangeEvent is published across the plan change lifecycle
type PlanChangeEvent struct {
	shared.BaseDomainEvent
	FromPlanID     string `json:"from_plan_id"`
	ToPlanID       string `json:"to_plan_id"`
	AmountCents    int64  `json:"amount_cents"`
	PaymentIntent  string `json:"payment_intent_id,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// NewPlanChangeEvent creates a plan change lifecycle event
func NewPlanChangeEvent(eventType string, tenantID, subscriptionID uuid.UUID, fromPlan, toPlan string, amountCents int64) *PlanChangeEvent {
	return &PlanChangeEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Subscription", subscriptionID, tenantID),
		FromPlanID:      fromPlan,
		ToPlanID:        toPlan,
		AmountCents:     amountCents,
	}
}
