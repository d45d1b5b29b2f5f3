package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineBreakdown is the billable split of one event type for a period.
// Usage up to the plan limit is charged at the unit price, usage beyond it
// at the overage price.
type LineBreakdown struct {
	Type          EventType       `json:"event_type"`
	TotalQuantity int64           `json:"total_quantity"`
	IncludedQty   int64           `json:"included_quantity"`
	OverageQty    int64           `json:"overage_quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OveragePrice  decimal.Decimal `json:"overage_price"`
	BaseCharge    decimal.Decimal `json:"base_charge"`
	OverageCharge decimal.Decimal `json:"overage_charge"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// BillingBreakdown is the full billable picture for a tenant and period:
// one line per event type with usage, plus the flat subscription fee.
type BillingBreakdown struct {
	TenantID        uuid.UUID       `json:"tenant_id"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	Lines           []LineBreakdown `json:"lines"`
	SubscriptionFee decimal.Decimal `json:"subscription_fee"`
	UsageTotal      decimal.Decimal `json:"usage_total"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

// BuildLineBreakdown splits a period's total quantity into included and
// overage portions against the plan limit and prices both. All amounts are
// rounded to cents. An unlimited or missing limit treats everything as
// included, and a limit without an overage price leaves the overage unbilled.
func BuildLineBreakdown(eventType EventType, totalQuantity int64, limit *UsageLimit) LineBreakdown {
	line := LineBreakdown{
		Type:          eventType,
		TotalQuantity: totalQuantity,
		IncludedQty:   totalQuantity,
		UnitPrice:     decimal.Zero,
		OveragePrice:  decimal.Zero,
		BaseCharge:    decimal.Zero,
		OverageCharge: decimal.Zero,
		LineTotal:     decimal.Zero,
	}
	if limit == nil {
		return line
	}

	line.UnitPrice = limit.UnitPrice
	line.OveragePrice = limit.EffectiveOveragePrice()

	if !limit.IsUnlimited() && totalQuantity > *limit.MaxQuantity {
		line.IncludedQty = *limit.MaxQuantity
		line.OverageQty = totalQuantity - *limit.MaxQuantity
	}

	line.BaseCharge = limit.UnitPrice.Mul(decimal.NewFromInt(line.IncludedQty)).Round(2)
	line.OverageCharge = line.OveragePrice.Mul(decimal.NewFromInt(line.OverageQty)).Round(2)
	line.LineTotal = line.BaseCharge.Add(line.OverageCharge)
	return line
}
