package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculateProration(t *testing.T) {
	// June 2026 has 30 days
	periodStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	t.Run("upgrade halfway through period charges half the difference", func(t *testing.T) {
		// 15 full days remain out of 30
		now := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)

		cents := CalculateProration(d("29.99"), d("79.99"), periodStart, periodEnd, now)

		assert.Equal(t, int64(2500), cents)
	})

	t.Run("equal prices charge nothing", func(t *testing.T) {
		now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

		cents := CalculateProration(d("29.99"), d("29.99"), periodStart, periodEnd, now)

		assert.Equal(t, int64(0), cents)
	})

	t.Run("downgrade is clamped to zero, never a credit", func(t *testing.T) {
		now := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)

		cents := CalculateProration(d("79.99"), d("29.99"), periodStart, periodEnd, now)

		assert.Equal(t, int64(0), cents)
	})

	t.Run("change at period start charges the full difference", func(t *testing.T) {
		cents := CalculateProration(d("10.00"), d("40.00"), periodStart, periodEnd, periodStart)

		assert.Equal(t, int64(3000), cents)
	})

	t.Run("partial remaining day rounds up in the charge", func(t *testing.T) {
		// 14 days and 12 hours remain, counted as 15 days
		now := time.Date(2026, 6, 16, 12, 0, 0, 0, time.UTC)

		cents := CalculateProration(d("0.00"), d("30.00"), periodStart, periodEnd, now)

		assert.Equal(t, int64(1500), cents)
	})

	t.Run("expired period charges the full new plan price", func(t *testing.T) {
		now := periodEnd.Add(time.Hour)

		cents := CalculateProration(d("29.99"), d("79.99"), periodStart, periodEnd, now)

		assert.Equal(t, int64(7999), cents)
	})

	t.Run("inverted period falls back to the full new plan price", func(t *testing.T) {
		now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

		cents := CalculateProration(d("29.99"), d("79.99"), periodEnd, periodStart, now)

		assert.Equal(t, int64(7999), cents)
	})

	t.Run("negative price falls back to the full new plan price", func(t *testing.T) {
		now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

		cents := CalculateProration(d("-5.00"), d("79.99"), periodStart, periodEnd, now)

		assert.Equal(t, int64(7999), cents)
	})

	t.Run("negative new price clamps the fallback to zero", func(t *testing.T) {
		now := periodEnd.Add(time.Hour)

		cents := CalculateProration(d("29.99"), d("-1.00"), periodStart, periodEnd, now)

		assert.Equal(t, int64(0), cents)
	})

	t.Run("result is never negative across a price sweep", func(t *testing.T) {
		prices := []string{"0.00", "9.99", "29.99", "79.99", "199.00"}
		for _, from := range prices {
			for _, to := range prices {
				for day := 1; day <= 30; day++ {
					now := periodStart.AddDate(0, 0, day-1)
					cents := CalculateProration(d(from), d(to), periodStart, periodEnd, now)
					assert.GreaterOrEqual(t, cents, int64(0), "from=%s to=%s day=%d", from, to, day)
				}
			}
		}
	})
}

func TestBillingPeriod(t *testing.T) {
	t.Run("covers the calendar month of the timestamp", func(t *testing.T) {
		ts := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

		start, end := BillingPeriod(ts)

		assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), end)
	})

	t.Run("first instant of the month maps to its own period", func(t *testing.T) {
		ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		start, end := BillingPeriod(ts)

		assert.Equal(t, ts, start)
		assert.True(t, end.After(start))
	})

	t.Run("december rolls over the year boundary", func(t *testing.T) {
		ts := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)

		start, end := BillingPeriod(ts)

		assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), end)
	})
}
