package handler

import (
	"context"
	"errors"
	"time"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanChanger moves a tenant between plans with prorated payment
type PlanChanger interface {
	InitiatePlanChange(ctx context.Context, tenantID uuid.UUID, planID string) (*billingapp.PlanChangeResult, error)
	VerifyPayment(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*billingapp.PlanChangeResult, error)
}

// SubscriptionHandler handles plan listing and plan change endpoints
type SubscriptionHandler struct {
	BaseHandler
	planChanges   PlanChanger
	plans         identity.PlanRepository
	subscriptions identity.SubscriptionRepository
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(
	planChanges PlanChanger,
	plans identity.PlanRepository,
	subscriptions identity.SubscriptionRepository,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		planChanges:   planChanges,
		plans:         plans,
		subscriptions: subscriptions,
	}
}

// PlanResponse is a subscription plan as returned by the API
type PlanResponse struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	MaxUsers     int             `json:"max_users"`
}

// CurrentSubscriptionResponse is the tenant's subscription state
type CurrentSubscriptionResponse struct {
	PlanID        string    `json:"plan_id"`
	PlanName      string    `json:"plan_name"`
	Status        string    `json:"status"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	ChangeState   string    `json:"change_state"`
	PendingPlanID *string   `json:"pending_plan_id,omitempty"`
	ChangeError   string    `json:"change_error,omitempty"`
}

// PaymentIntentRequest is the payload for initiating a plan change
type PaymentIntentRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// VerifyPaymentRequest is the payload for confirming a plan change payment
type VerifyPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// ListPlans returns all active plans ordered for display
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.FindActive(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]PlanResponse, 0, len(plans))
	for _, plan := range plans {
		items = append(items, PlanResponse{
			Code:         plan.Code,
			Name:         plan.Name,
			Description:  plan.Description,
			MonthlyPrice: plan.MonthlyPrice,
			MaxUsers:     plan.MaxUsers,
		})
	}

	h.Success(c, items)
}

// GetCurrentSubscription returns the tenant's subscription with any
// pending plan change state
func (h *SubscriptionHandler) GetCurrentSubscription(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	sub, err := h.subscriptions.FindByTenant(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "No subscription found for tenant")
			return
		}
		h.HandleError(c, err)
		return
	}

	response := CurrentSubscriptionResponse{
		PlanID:        sub.PlanID,
		Status:        string(sub.Status),
		PeriodStart:   sub.PeriodStart,
		PeriodEnd:     sub.PeriodEnd,
		ChangeState:   string(sub.ChangeState),
		PendingPlanID: sub.PendingPlanID,
		ChangeError:   sub.ChangeError,
	}
	if plan, err := h.plans.FindByCode(c.Request.Context(), sub.PlanID); err == nil {
		response.PlanName = plan.Name
	}

	h.Success(c, response)
}

// CreatePaymentIntent starts a plan change. When the prorated difference
// is zero the change applies immediately; otherwise the response carries
// a Stripe client secret for the frontend to confirm.
func (h *SubscriptionHandler) CreatePaymentIntent(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	var req PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.planChanges.InitiatePlanChange(c.Request.Context(), tenantID, req.PlanID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// VerifyPayment confirms a pending plan change against the gateway's
// record of the payment intent. Safe to call repeatedly.
func (h *SubscriptionHandler) VerifyPayment(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant ID not found in token")
		return
	}

	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.planChanges.VerifyPayment(c.Request.Context(), tenantID, req.PaymentIntentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
