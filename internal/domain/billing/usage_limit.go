package billing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/backoffice/backend/internal/domain/shared"
)

// UsageLimit defines the quota and pricing of one event type under a plan.
// A nil MaxQuantity means unlimited. UnitPrice applies to usage within the
// limit, OveragePrice to usage beyond it; with a nil OveragePrice the
// overage portion is not billed.
type UsageLimit struct {
	shared.BaseEntity
	PlanID       string
	Type         EventType
	MaxQuantity  *int64
	UnitPrice    decimal.Decimal
	OveragePrice *decimal.Decimal
	Active       bool
}

// NewUsageLimit creates an active usage limit for a plan
func NewUsageLimit(planID string, eventType EventType, maxQuantity *int64, unitPrice decimal.Decimal) (*UsageLimit, error) {
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID is required")
	}
	if !eventType.IsValid() {
		return nil, shared.NewDomainError("INVALID_EVENT_TYPE", "Unknown usage event type: "+string(eventType))
	}
	if maxQuantity != nil && *maxQuantity < 0 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Limit cannot be negative")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	return &UsageLimit{
		BaseEntity:  shared.NewBaseEntity(),
		PlanID:      planID,
		Type:        eventType,
		MaxQuantity: maxQuantity,
		UnitPrice:   unitPrice,
		Active:      true,
	}, nil
}

// WithOveragePrice sets a distinct per-unit price for usage beyond the limit
func (l *UsageLimit) WithOveragePrice(price decimal.Decimal) *UsageLimit {
	l.OveragePrice = &price
	return l
}

// IsUnlimited reports whether this limit imposes no quantity cap
func (l *UsageLimit) IsUnlimited() bool {
	return l.MaxQuantity == nil
}

// EffectiveOveragePrice returns the per-unit price for overage usage.
// Plans without an overage price do not bill the overage portion.
func (l *UsageLimit) EffectiveOveragePrice() decimal.Decimal {
	if l.OveragePrice != nil {
		return *l.OveragePrice
	}
	return decimal.Zero
}

// nearLimitThreshold is the utilization fraction at which a warning fires
const nearLimitThreshold = 0.8

// LimitCheckResult is the outcome of checking current usage against a limit
type LimitCheckResult struct {
	Type         EventType `json:"event_type"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        *int64    `json:"limit"`
	Remaining    *int64    `json:"remaining"`
	PercentUsed  float64   `json:"percent_used"`
	OverLimit    bool      `json:"is_over_limit"`
	NearLimit    bool      `json:"is_near_limit"`
	Unlimited    bool      `json:"is_unlimited"`
}

// CheckUsage evaluates current usage against this limit. Usage equal to the
// limit is still allowed; only usage strictly beyond it is over the limit.
// A zero limit with any usage reports 100% so it always reads as exhausted.
func (l *UsageLimit) CheckUsage(currentUsage int64) LimitCheckResult {
	result := LimitCheckResult{
		Type:         l.Type,
		CurrentUsage: currentUsage,
	}

	if l.IsUnlimited() {
		result.Unlimited = true
		return result
	}

	limit := *l.MaxQuantity
	result.Limit = &limit

	remaining := limit - currentUsage
	if remaining < 0 {
		remaining = 0
	}
	result.Remaining = &remaining

	if limit > 0 {
		pct := float64(currentUsage) / float64(limit) * 100
		result.PercentUsed = math.Round(pct*100) / 100
	} else if currentUsage > 0 {
		result.PercentUsed = 100
	}

	result.OverLimit = currentUsage > limit
	result.NearLimit = limit > 0 && float64(currentUsage) >= float64(limit)*nearLimitThreshold

	return result
}
