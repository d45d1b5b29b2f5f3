// Package billing contains the usage metering and billing domain model:
// metered usage events, per-period usage summaries, plan usage limits with
// overage pricing, proration for mid-cycle plan changes, and invoices.
package billing
