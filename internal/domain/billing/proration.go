package billing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// CalculateProration computes the amount, in minor currency units (cents),
// to charge immediately when a tenant switches from currentPrice to newPrice
// partway through a billing period. Prices are monthly amounts in major
// units.
//
// The charge covers only the remaining fraction of the period: the price
// difference scaled by remaining days over total days, with partial days
// counted as whole days in the customer's favor only on the denominator
// side. Downgrades never produce a credit; the result is clamped to zero.
//
// Degenerate inputs fall back to charging the full new plan price rather
// than failing: a period that has already ended, an inverted period, or a
// negative price all yield the full new price in cents (clamped to zero).
func CalculateProration(currentPrice, newPrice decimal.Decimal, periodStart, periodEnd, now time.Time) int64 {
	fullPrice := toCents(newPrice)

	if currentPrice.IsNegative() || newPrice.IsNegative() {
		return fullPrice
	}
	if !periodEnd.After(periodStart) {
		return fullPrice
	}
	if !now.Before(periodEnd) {
		return fullPrice
	}

	totalDays := ceilDays(periodEnd.Sub(periodStart))
	remainingDays := ceilDays(periodEnd.Sub(now))
	if totalDays <= 0 {
		return fullPrice
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}
	if remainingDays <= 0 {
		return fullPrice
	}

	diff := newPrice.Sub(currentPrice)
	prorated := diff.
		Mul(decimal.NewFromInt(int64(remainingDays))).
		Div(decimal.NewFromInt(int64(totalDays)))

	cents := prorated.Mul(oneHundred).Round(0).IntPart()
	if cents < 0 {
		return 0
	}
	return cents
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}

func toCents(price decimal.Decimal) int64 {
	cents := price.Mul(oneHundred).Round(0).IntPart()
	if cents < 0 {
		return 0
	}
	return cents
}
