package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
)

// gatewayTimeout bounds every outbound payment provider call. A timed-out
// charge leaves the subscription awaiting payment; the webhook or a verify
// call settles it later.
const gatewayTimeout = 15 * time.Second

// PlanChangeResult is returned when a plan change is initiated
type PlanChangeResult struct {
	Applied         bool   `json:"applied"`
	AmountCents     int64  `json:"amount_cents"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
}

// PlanChangeService moves tenants between plans mid-cycle. The prorated
// difference is charged through the payment gateway; the plan only switches
// once payment is confirmed, or immediately when nothing is owed.
type PlanChangeService struct {
	subscriptions identity.SubscriptionRepository
	plans         identity.PlanRepository
	tenants       identity.TenantRepository
	users         identity.UserCounter
	gateway       billingdomain.PaymentGateway
	publisher     shared.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewPlanChangeService creates a plan change service
func NewPlanChangeService(
	subscriptions identity.SubscriptionRepository,
	plans identity.PlanRepository,
	tenants identity.TenantRepository,
	users identity.UserCounter,
	gateway billingdomain.PaymentGateway,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *PlanChangeService {
	return &PlanChangeService{
		subscriptions: subscriptions,
		plans:         plans,
		tenants:       tenants,
		users:         users,
		gateway:       gateway,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}
}

// InitiatePlanChange validates a requested plan change, computes the
// prorated charge for the rest of the current period, and either applies
// the change outright (zero amount) or raises a payment intent whose
// confirmation will apply it.
func (s *PlanChangeService) InitiatePlanChange(ctx context.Context, tenantID uuid.UUID, planID string) (*PlanChangeResult, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	newPlan, err := s.plans.FindByCode(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !newPlan.Active {
		return nil, shared.NewDomainError("PLAN_INACTIVE", "Plan is not available: "+planID)
	}

	userCount, err := s.users.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !newPlan.AllowsUserCount(userCount) {
		return nil, shared.NewDomainError("PLAN_SEAT_LIMIT",
			fmt.Sprintf("Tenant has %d users but plan %s allows at most %d", userCount, newPlan.Code, newPlan.MaxUsers))
	}

	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	currentPlan, err := s.plans.FindByCode(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	amountCents := billingdomain.CalculateProration(
		currentPlan.MonthlyPrice, newPlan.MonthlyPrice, sub.PeriodStart, sub.PeriodEnd, s.now())

	if err := sub.RequestPlanChange(planID); err != nil {
		return nil, err
	}

	if amountCents == 0 {
		if err := sub.ApplyPlanChange(planID, s.now()); err != nil {
			return nil, err
		}
		if err := s.subscriptions.Save(ctx, sub); err != nil {
			return nil, err
		}
		s.publishAsync(billingdomain.NewPlanChangeEvent(
			billingdomain.EventPlanChangeApplied, tenantID, sub.ID, currentPlan.Code, planID, 0))
		return &PlanChangeResult{Applied: true}, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	customerID, err := s.gateway.EnsureCustomer(gwCtx, tenantID, tenant.Name, tenant.ContactEmail)
	if err != nil {
		return nil, &PaymentError{Op: "customer setup", Err: err}
	}
	if customerID != tenant.StripeCustomerID {
		tenant.SetStripeCustomerID(customerID)
		if err := s.tenants.Save(ctx, tenant); err != nil {
			s.logger.Warn("failed to persist gateway customer link",
				zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}

	intent, err := s.gateway.CreatePaymentIntent(gwCtx, customerID, billingdomain.CreatePaymentIntentRequest{
		TenantID:    tenantID,
		AmountCents: amountCents,
		Currency:    tenant.Config.Currency,
		Description: fmt.Sprintf("Prorated upgrade to %s", newPlan.Name),
		Metadata: map[string]string{
			"tenant_id":       tenantID.String(),
			"subscription_id": sub.ID.String(),
			"plan_id":         planID,
		},
	})
	if err != nil {
		return nil, &PaymentError{Op: "intent creation", Err: err}
	}

	if err := sub.AwaitPayment(intent.ID); err != nil {
		return nil, err
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.publishAsync(billingdomain.NewPlanChangeEvent(
		billingdomain.EventPlanChangeRequested, tenantID, sub.ID, currentPlan.Code, planID, amountCents))

	return &PlanChangeResult{
		AmountCents:     amountCents,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// VerifyPayment confirms a payment intent directly with the gateway and
// applies the pending plan change if it succeeded. This is the frontend's
// synchronous path; the webhook covers it asynchronously as well, and both
// paths applying the same change is harmless.
func (s *PlanChangeService) VerifyPayment(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*PlanChangeResult, error) {
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.PaymentIntentID == nil || *sub.PaymentIntentID != paymentIntentID {
		return nil, shared.NewDomainError("UNKNOWN_PAYMENT_INTENT", "Payment intent does not belong to this subscription")
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	intent, err := s.gateway.GetPaymentIntent(gwCtx, paymentIntentID)
	if err != nil {
		return nil, &PaymentError{Op: "intent lookup", Err: err}
	}

	switch intent.Status {
	case billingdomain.PaymentIntentStatusSucceeded:
		return s.applyPending(ctx, sub, intent.AmountCents)
	case billingdomain.PaymentIntentStatusFailed, billingdomain.PaymentIntentStatusCanceled:
		s.failPending(ctx, sub, "payment "+string(intent.Status))
		return nil, billingdomain.ErrPaymentNotSucceeded
	default:
		return nil, billingdomain.ErrPaymentNotSucceeded
	}
}

// HandlePaymentSucceeded applies the plan change tied to a confirmed
// payment intent. Called from the webhook, which delivers at least once:
// unknown intents are acknowledged with a warning so the provider stops
// retrying, and repeated confirmations are no-ops.
func (s *PlanChangeService) HandlePaymentSucceeded(ctx context.Context, intentID string, metadata map[string]string) error {
	sub, err := s.findByIntent(ctx, intentID, metadata)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("payment confirmation for unknown subscription",
				zap.String("payment_intent_id", intentID))
			return nil
		}
		return err
	}

	if _, err := s.applyPending(ctx, sub, 0); err != nil {
		return err
	}
	return nil
}

// HandlePaymentFailed marks the pending plan change as failed. The tenant
// stays on the current plan.
func (s *PlanChangeService) HandlePaymentFailed(ctx context.Context, intentID string, metadata map[string]string, reason string) error {
	sub, err := s.findByIntent(ctx, intentID, metadata)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("payment failure for unknown subscription",
				zap.String("payment_intent_id", intentID))
			return nil
		}
		return err
	}

	s.failPending(ctx, sub, reason)
	return nil
}

func (s *PlanChangeService) findByIntent(ctx context.Context, intentID string, metadata map[string]string) (*identity.Subscription, error) {
	sub, err := s.subscriptions.FindByPaymentIntentID(ctx, intentID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	// The intent may already be detached from the subscription (change
	// applied via the verify path); fall back to the metadata we stamped
	// on the intent at creation time.
	if raw, ok := metadata["tenant_id"]; ok {
		tenantID, parseErr := uuid.Parse(raw)
		if parseErr == nil {
			return s.subscriptions.FindByTenant(ctx, tenantID)
		}
	}
	return nil, shared.ErrNotFound
}

func (s *PlanChangeService) applyPending(ctx context.Context, sub *identity.Subscription, amountCents int64) (*PlanChangeResult, error) {
	if sub.PendingPlanID == nil {
		// Already applied by a concurrent confirmation path.
		return &PlanChangeResult{Applied: true}, nil
	}

	fromPlan := sub.PlanID
	targetPlan := *sub.PendingPlanID
	if err := sub.ApplyPlanChange(targetPlan, s.now()); err != nil {
		return nil, err
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.publishAsync(billingdomain.NewPlanChangeEvent(
		billingdomain.EventPlanChangeApplied, sub.TenantID, sub.ID, fromPlan, targetPlan, amountCents))

	return &PlanChangeResult{Applied: true, AmountCents: amountCents}, nil
}

func (s *PlanChangeService) failPending(ctx context.Context, sub *identity.Subscription, reason string) {
	if !sub.HasPendingChange() {
		return
	}

	var targetPlan string
	if sub.PendingPlanID != nil {
		targetPlan = *sub.PendingPlanID
	}

	sub.FailPlanChange(reason)
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		s.logger.Error("failed to persist failed plan change",
			zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		return
	}

	s.publishAsync(billingdomain.NewPlanChangeEvent(
		billingdomain.EventPlanChangeFailed, sub.TenantID, sub.ID, sub.PlanID, targetPlan, 0))
}

func (s *PlanChangeService) publishAsync(event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish plan change event",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}()
}
