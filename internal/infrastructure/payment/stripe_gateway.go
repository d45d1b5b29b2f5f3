package payment

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"go.uber.org/zap"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/infrastructure/config"
)

// StripeGateway implements billing.PaymentGateway on Stripe. Plan change
// charges are raised as one-off payment intents; the subscription metadata
// rides on the intent and comes back on the webhook.
type StripeGateway struct {
	currency string
	logger   *zap.Logger
}

// NewStripeGateway creates a Stripe payment gateway
func NewStripeGateway(cfg config.StripeConfig, logger *zap.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, billing.ErrGatewayNotConfigured
	}

	stripe.Key = cfg.SecretKey

	return &StripeGateway{
		currency: cfg.Currency,
		logger:   logger,
	}, nil
}

// EnsureCustomer returns the Stripe customer ID for a tenant, creating the
// customer on first use. The tenant ID is stored in customer metadata so
// the mapping can be rebuilt from the Stripe side.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, tenantID uuid.UUID, name, email string) (string, error) {
	if tenantID == uuid.Nil {
		return "", billing.ErrPaymentInvalidTenantID
	}

	params := &stripe.CustomerParams{
		Name: stripe.String(name),
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Metadata = map[string]string{
		"tenant_id": tenantID.String(),
	}

	cust, err := customer.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe customer",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	g.logger.Info("Created Stripe customer",
		zap.String("tenant_id", tenantID.String()),
		zap.String("customer_id", cust.ID))

	return cust.ID, nil
}

// CreatePaymentIntent raises a one-off charge for a prorated plan change
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, customerID string, req billing.CreatePaymentIntentRequest) (*billing.PaymentIntent, error) {
	if req.AmountCents <= 0 {
		return nil, billing.ErrPaymentInvalidAmount
	}

	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Metadata = map[string]string{
		"tenant_id": req.TenantID.String(),
	}
	maps.Copy(params.Metadata, req.Metadata)

	intent, err := paymentintent.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe payment intent",
			zap.String("tenant_id", req.TenantID.String()),
			zap.Int64("amount_cents", req.AmountCents),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}

	g.logger.Info("Created Stripe payment intent",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("intent_id", intent.ID),
		zap.Int64("amount_cents", req.AmountCents))

	return toPaymentIntent(intent), nil
}

// GetPaymentIntent fetches the current state of an intent
func (g *StripeGateway) GetPaymentIntent(ctx context.Context, intentID string) (*billing.PaymentIntent, error) {
	intent, err := paymentintent.Get(intentID, nil)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.HTTPStatusCode == 404 {
			return nil, billing.ErrPaymentIntentNotFound
		}
		return nil, fmt.Errorf("stripe: failed to get payment intent: %w", err)
	}
	return toPaymentIntent(intent), nil
}

func toPaymentIntent(intent *stripe.PaymentIntent) *billing.PaymentIntent {
	return &billing.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.Amount,
		Currency:     string(intent.Currency),
		Status:       mapIntentStatus(intent.Status),
	}
}

// mapIntentStatus collapses Stripe's intent statuses onto the domain
// lifecycle. Anything still requiring customer action reads as pending.
func mapIntentStatus(status stripe.PaymentIntentStatus) billing.PaymentIntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return billing.PaymentIntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return billing.PaymentIntentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return billing.PaymentIntentStatusPending
	default:
		return billing.PaymentIntentStatusFailed
	}
}

var _ billing.PaymentGateway = (*StripeGateway)(nil)
