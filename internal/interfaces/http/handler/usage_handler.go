package handler

import (
	"context"
	"fmt"
	"time"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/backoffice/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UsageRecorder records and lists usage events
type UsageRecorder interface {
	RecordUsage(ctx context.Context, input billingapp.RecordUsageInput) (*billing.UsageEvent, error)
	ListEvents(ctx context.Context, tenantID uuid.UUID, filter billing.UsageEventFilter) (shared.Paginated[billing.UsageEvent], error)
}

// LimitChecker evaluates tenant usage against plan limits
type LimitChecker interface {
	EnforceLimit(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType) error
	CheckAllLimits(ctx context.Context, tenantID uuid.UUID) ([]billing.LimitCheckResult, error)
}

// UsageExporter renders the usage event log in a download format
type UsageExporter interface {
	ExportCSV(ctx context.Context, tenantID uuid.UUID, filter billing.UsageEventFilter) ([]byte, error)
	ExportXLSX(ctx context.Context, tenantID uuid.UUID, filter billing.UsageEventFilter) ([]byte, error)
}

// UsageHandler handles usage tracking and limit endpoints
type UsageHandler struct {
	BaseHandler
	usage  UsageRecorder
	limits LimitChecker
	export UsageExporter
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(
	usage UsageRecorder,
	limits LimitChecker,
	export UsageExporter,
) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		limits: limits,
		export: export,
	}
}

// TrackUsageRequest is the payload for recording a usage event
type TrackUsageRequest struct {
	EventType  string                 `json:"event_type" binding:"required"`
	Quantity   int64                  `json:"quantity" binding:"omitempty,gt=0"`
	ResourceID string                 `json:"resource_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// UsageEventResponse is a recorded usage event as returned by the API
type UsageEventResponse struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenant_id"`
	UserID      *string                `json:"user_id,omitempty"`
	EventType   string                 `json:"event_type"`
	Quantity    int64                  `json:"quantity"`
	Unit        string                 `json:"unit"`
	ResourceID  *string                `json:"resource_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	PeriodStart time.Time              `json:"period_start"`
	PeriodEnd   time.Time              `json:"period_end"`
	RecordedAt  time.Time              `json:"recorded_at"`
}

func toUsageEventResponse(event *billing.UsageEvent) UsageEventResponse {
	resp := UsageEventResponse{
		ID:          event.ID.String(),
		TenantID:    event.TenantID.String(),
		EventType:   string(event.Type),
		Quantity:    event.Quantity,
		Unit:        event.Type.Unit(),
		ResourceID:  event.ResourceID,
		Metadata:    event.Metadata,
		PeriodStart: event.PeriodStart,
		PeriodEnd:   event.PeriodEnd,
		RecordedAt:  event.RecordedAt,
	}
	if event.UserID != nil {
		userID := event.UserID.String()
		resp.UserID = &userID
	}
	return resp
}

// TrackUsage records a usage event for the authenticated tenant. The
// tenant's plan limit for the event type is enforced before the write,
// so a tenant at its quota gets a 400 with the limit standing.
func (h *UsageHandler) TrackUsage(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	var req TrackUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	eventType, ok := billing.ParseEventType(req.EventType)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeInvalidEventType,
			fmt.Sprintf("Unknown event type %q", req.EventType))
		return
	}

	if err := h.limits.EnforceLimit(c.Request.Context(), tenantID, eventType); err != nil {
		h.HandleError(c, err)
		return
	}

	input := billingapp.RecordUsageInput{
		TenantID:   tenantID,
		Type:       eventType,
		Quantity:   req.Quantity,
		ResourceID: req.ResourceID,
		Metadata:   req.Metadata,
	}
	if userID, err := getUserID(c); err == nil {
		input.UserID = &userID
	}

	event, err := h.usage.RecordUsage(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toUsageEventResponse(event))
}

// GetLimits returns the tenant's standing against every limit on its plan
func (h *UsageHandler) GetLimits(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	results, err := h.limits.CheckAllLimits(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{
		"tenant_id": tenantID.String(),
		"limits":    results,
	})
}

// ListEvents returns the tenant's usage events, newest first, paginated
func (h *UsageHandler) ListEvents(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	filter, err := parseUsageEventFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.usage.ListEvents(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]UsageEventResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toUsageEventResponse(&page.Items[i]))
	}

	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// ExportEvents streams the tenant's usage events as CSV or XLSX. The
// format query parameter picks the encoding and defaults to CSV.
func (h *UsageHandler) ExportEvents(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	filter, err := parseUsageEventFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	format := c.DefaultQuery("format", "csv")
	filename := fmt.Sprintf("usage-%s-%s", tenantID.String()[:8], time.Now().UTC().Format("20060102"))

	switch format {
	case "csv":
		data, err := h.export.ExportCSV(c.Request.Context(), tenantID, filter)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(200, "text/csv", data)
	case "xlsx":
		data, err := h.export.ExportXLSX(c.Request.Context(), tenantID, filter)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", filename))
		c.Data(200, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		h.BadRequest(c, "Invalid format. Must be one of: csv, xlsx")
	}
}

// parseUsageEventFilter builds an event filter from list query parameters
func parseUsageEventFilter(c *gin.Context) (billing.UsageEventFilter, error) {
	filter := billing.DefaultUsageEventFilter()

	if typeStr := c.Query("event_type"); typeStr != "" {
		eventType, ok := billing.ParseEventType(typeStr)
		if !ok {
			return filter, fmt.Errorf("unknown event type %q", typeStr)
		}
		filter.Type = &eventType
	}

	if userIDStr := c.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			return filter, fmt.Errorf("invalid user_id format")
		}
		filter.UserID = &userID
	}

	if startStr := c.Query("start_time"); startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return filter, fmt.Errorf("invalid start_time, use RFC3339")
		}
		filter.StartTime = &start
	}

	if endStr := c.Query("end_time"); endStr != "" {
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return filter, fmt.Errorf("invalid end_time, use RFC3339")
		}
		filter.EndTime = &end
	}

	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		return filter, fmt.Errorf("invalid pagination parameters")
	}
	if listReq.Page > 0 {
		filter.Page = listReq.Page
	}
	if listReq.PageSize > 0 {
		filter.PageSize = listReq.PageSize
	}
	if listReq.OrderBy != "" {
		filter.OrderBy = listReq.OrderBy
	}
	if listReq.OrderDir != "" {
		filter.OrderDir = listReq.OrderDir
	}

	return filter, nil
}
