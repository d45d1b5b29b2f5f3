package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPaymentInvalidTenantID = errors.New("payment: invalid tenant ID")
	ErrPaymentInvalidAmount   = errors.New("payment: invalid payment amount")
	ErrPaymentIntentNotFound  = errors.New("payment: payment intent not found")
	ErrPaymentNotSucceeded    = errors.New("payment: payment has not succeeded")

	ErrGatewayNotConfigured   = errors.New("payment: gateway not configured")
	ErrGatewayRequestFailed   = errors.New("payment: gateway request failed")
	ErrGatewayInvalidResponse = errors.New("payment: invalid gateway response")
	ErrGatewayInvalidWebhook  = errors.New("payment: invalid webhook signature")
)

// PaymentIntentStatus mirrors the lifecycle of a gateway payment intent
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending   PaymentIntentStatus = "pending"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
	PaymentIntentStatusCanceled  PaymentIntentStatus = "canceled"
)

// PaymentIntent is the gateway-side handle for one prorated plan change
// charge. ClientSecret is handed to the frontend to complete the payment.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       PaymentIntentStatus
}

// CreatePaymentIntentRequest carries what the gateway needs to raise a
// charge. Metadata round-trips through the gateway and comes back on the
// webhook, which is how confirmations are matched to subscriptions.
type CreatePaymentIntentRequest struct {
	TenantID    uuid.UUID
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// PaymentGateway abstracts the payment provider used for plan change
// charges. Implementations are constructed once at startup and injected;
// nothing in the application layer talks to provider globals.
type PaymentGateway interface {
	// EnsureCustomer returns the provider customer ID for a tenant,
	// creating the customer on first use
	EnsureCustomer(ctx context.Context, tenantID uuid.UUID, name, email string) (string, error)
	// CreatePaymentIntent raises a charge and returns the intent with its
	// client secret
	CreatePaymentIntent(ctx context.Context, customerID string, req CreatePaymentIntentRequest) (*PaymentIntent, error)
	// GetPaymentIntent fetches the current state of an intent
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
}

// WebhookVerifier authenticates inbound gateway callbacks
type WebhookVerifier interface {
	// VerifyWebhook checks the payload signature and returns the decoded
	// event type, intent ID, and metadata
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// WebhookEvent is a verified gateway callback
type WebhookEvent struct {
	Type     string
	IntentID string
	Metadata map[string]string
}
