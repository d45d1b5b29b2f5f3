package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/backoffice/backend/internal/domain/shared"
)

// InvoiceStatus tracks the invoice lifecycle
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

// invoiceDueDays is how long a tenant has to settle an issued invoice
const invoiceDueDays = 30

// InvoiceLine is a single billed line on an invoice
type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a bill issued to a tenant for one billing period, covering the
// flat subscription fee and metered usage charges.
type Invoice struct {
	shared.BaseAggregateRoot
	TenantID    uuid.UUID
	Number      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Lines       []InvoiceLine
	Subtotal    decimal.Decimal
	Total       decimal.Decimal
	Status      InvoiceStatus
	IssuedAt    time.Time
	DueAt       time.Time
	PaidAt      *time.Time
}

// NewInvoiceFromBreakdown builds an issued invoice from a billing breakdown.
// Zero-amount usage lines are omitted; the subscription fee line is always
// present. Payment is due 30 days after issue.
func NewInvoiceFromBreakdown(breakdown *BillingBreakdown, planName string, issuedAt time.Time) (*Invoice, error) {
	if breakdown == nil {
		return nil, shared.ErrInvalidInput
	}
	if breakdown.TenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          breakdown.TenantID,
		Number:            NewInvoiceNumber(issuedAt),
		PeriodStart:       breakdown.PeriodStart,
		PeriodEnd:         breakdown.PeriodEnd,
		Status:            InvoiceStatusIssued,
		IssuedAt:          issuedAt,
		DueAt:             issuedAt.AddDate(0, 0, invoiceDueDays),
	}

	inv.Lines = append(inv.Lines, InvoiceLine{
		Description: fmt.Sprintf("%s plan subscription", planName),
		Quantity:    1,
		UnitPrice:   breakdown.SubscriptionFee,
		Amount:      breakdown.SubscriptionFee,
	})

	for _, line := range breakdown.Lines {
		if line.BaseCharge.IsPositive() {
			inv.Lines = append(inv.Lines, InvoiceLine{
				Description: fmt.Sprintf("%s (included usage)", line.Type.DisplayName()),
				Quantity:    line.IncludedQty,
				UnitPrice:   line.UnitPrice,
				Amount:      line.BaseCharge,
			})
		}
		if line.OverageCharge.IsPositive() {
			inv.Lines = append(inv.Lines, InvoiceLine{
				Description: fmt.Sprintf("%s (overage)", line.Type.DisplayName()),
				Quantity:    line.OverageQty,
				UnitPrice:   line.OveragePrice,
				Amount:      line.OverageCharge,
			})
		}
	}

	subtotal := decimal.Zero
	for _, line := range inv.Lines {
		subtotal = subtotal.Add(line.Amount)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.Total = inv.Subtotal

	return inv, nil
}

// MarkPaid records settlement of the invoice
func (i *Invoice) MarkPaid(at time.Time) error {
	if i.Status != InvoiceStatusIssued {
		return shared.ErrInvalidState
	}
	i.Status = InvoiceStatusPaid
	i.PaidAt = &at
	i.UpdatedAt = time.Now()
	return nil
}

// Void cancels an unpaid invoice
func (i *Invoice) Void() error {
	if i.Status == InvoiceStatusPaid {
		return shared.ErrInvalidState
	}
	i.Status = InvoiceStatusVoid
	i.UpdatedAt = time.Now()
	return nil
}

// NewInvoiceNumber generates an invoice number of the form INV-YYYYMM-XXXXXX
// where the suffix is a random hex fragment from a fresh UUID.
func NewInvoiceNumber(issuedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("INV-%s-%s", issuedAt.Format("200601"), suffix)
}
