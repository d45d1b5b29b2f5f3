package handler

import (
	"context"
	"time"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/backoffice/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCalculator aggregates usage into billable amounts and invoices
type BillingCalculator interface {
	CalculateUsageBilling(ctx context.Context, tenantID uuid.UUID, periodStart time.Time, generateInvoice bool) (*billingapp.BillingResult, error)
	GetBillingSummary(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) (*billingapp.BillingSummaryView, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[billing.Invoice], error)
}

// BillingHandler handles billing aggregation and invoice endpoints
type BillingHandler struct {
	BaseHandler
	billing BillingCalculator
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billing BillingCalculator) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// CalculateUsageRequest is the payload for a billing run
type CalculateUsageRequest struct {
	Period          string `json:"period" binding:"omitempty,len=7"`
	GenerateInvoice bool   `json:"generate_invoice"`
}

// InvoiceLineResponse is one line of an invoice as returned by the API
type InvoiceLineResponse struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceResponse is an invoice as returned by the API
type InvoiceResponse struct {
	ID          string                `json:"id"`
	TenantID    string                `json:"tenant_id"`
	Number      string                `json:"number"`
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Lines       []InvoiceLineResponse `json:"lines"`
	Subtotal    decimal.Decimal       `json:"subtotal"`
	Total       decimal.Decimal       `json:"total"`
	Status      string                `json:"status"`
	IssuedAt    time.Time             `json:"issued_at"`
	DueAt       time.Time             `json:"due_at"`
	PaidAt      *time.Time            `json:"paid_at,omitempty"`
}

// CalculateUsageResponse is the outcome of a billing run
type CalculateUsageResponse struct {
	Breakdown *billing.BillingBreakdown `json:"breakdown"`
	Invoice   *InvoiceResponse          `json:"invoice,omitempty"`
}

func toInvoiceResponse(invoice *billing.Invoice) *InvoiceResponse {
	if invoice == nil {
		return nil
	}
	lines := make([]InvoiceLineResponse, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		lines = append(lines, InvoiceLineResponse{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
		})
	}
	return &InvoiceResponse{
		ID:          invoice.ID.String(),
		TenantID:    invoice.TenantID.String(),
		Number:      invoice.Number,
		PeriodStart: invoice.PeriodStart,
		PeriodEnd:   invoice.PeriodEnd,
		Lines:       lines,
		Subtotal:    invoice.Subtotal,
		Total:       invoice.Total,
		Status:      string(invoice.Status),
		IssuedAt:    invoice.IssuedAt,
		DueAt:       invoice.DueAt,
		PaidAt:      invoice.PaidAt,
	}
}

// CalculateUsage runs billing aggregation for the tenant's period,
// optionally issuing an invoice from the result
func (h *BillingHandler) CalculateUsage(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	var req CalculateUsageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	periodStart, err := resolvePeriodStart(req.Period)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.billing.CalculateUsageBilling(c.Request.Context(), tenantID, periodStart, req.GenerateInvoice)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, CalculateUsageResponse{
		Breakdown: result.Breakdown,
		Invoice:   toInvoiceResponse(result.Invoice),
	})
}

// GetSummary returns the dashboard billing summary for a period,
// defaulting to the current calendar month
func (h *BillingHandler) GetSummary(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	periodStart, err := resolvePeriodStart(c.Query("period"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	summary, err := h.billing.GetBillingSummary(c.Request.Context(), tenantID, periodStart)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, summary)
}

// ListInvoices returns the tenant's invoices, newest first, paginated
func (h *BillingHandler) ListInvoices(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}

	filter := shared.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
		OrderBy:  listReq.OrderBy,
		OrderDir: listReq.OrderDir,
	}

	page, err := h.billing.ListInvoices(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]*InvoiceResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toInvoiceResponse(&page.Items[i]))
	}

	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// resolvePeriodStart parses a YYYY-MM period into the first instant of
// that month. An empty period means the calendar month containing now.
func resolvePeriodStart(period string) (time.Time, error) {
	if period == "" {
		start, _ := billing.BillingPeriod(time.Now().UTC())
		return start, nil
	}
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, shared.NewDomainError("INVALID_INPUT", "Invalid period. Use YYYY-MM")
	}
	return start.UTC(), nil
}
