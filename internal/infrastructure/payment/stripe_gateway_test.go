package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/infrastructure/config"
)

func TestNewStripeGateway(t *testing.T) {
	t.Run("requires a secret key", func(t *testing.T) {
		_, err := NewStripeGateway(config.StripeConfig{}, zap.NewNop())
		assert.ErrorIs(t, err, billing.ErrGatewayNotConfigured)
	})

	t.Run("constructs with a key", func(t *testing.T) {
		gw, err := NewStripeGateway(config.StripeConfig{SecretKey: "sk_test_123", Currency: "usd"}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, gw)
	})
}

func TestStripeGateway_InputValidation(t *testing.T) {
	gw, err := NewStripeGateway(config.StripeConfig{SecretKey: "sk_test_123", Currency: "usd"}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("rejects nil tenant for customer creation", func(t *testing.T) {
		_, err := gw.EnsureCustomer(ctx, uuid.Nil, "Acme", "billing@acme.test")
		assert.ErrorIs(t, err, billing.ErrPaymentInvalidTenantID)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := gw.CreatePaymentIntent(ctx, "cus_123", billing.CreatePaymentIntentRequest{
			TenantID:    uuid.New(),
			AmountCents: 0,
		})
		assert.ErrorIs(t, err, billing.ErrPaymentInvalidAmount)

		_, err = gw.CreatePaymentIntent(ctx, "cus_123", billing.CreatePaymentIntentRequest{
			TenantID:    uuid.New(),
			AmountCents: -100,
		})
		assert.ErrorIs(t, err, billing.ErrPaymentInvalidAmount)
	})
}

func TestMapIntentStatus(t *testing.T) {
	tests := []struct {
		stripe stripe.PaymentIntentStatus
		want   billing.PaymentIntentStatus
	}{
		{stripe.PaymentIntentStatusSucceeded, billing.PaymentIntentStatusSucceeded},
		{stripe.PaymentIntentStatusCanceled, billing.PaymentIntentStatusCanceled},
		{stripe.PaymentIntentStatusProcessing, billing.PaymentIntentStatusPending},
		{stripe.PaymentIntentStatusRequiresPaymentMethod, billing.PaymentIntentStatusPending},
		{stripe.PaymentIntentStatusRequiresConfirmation, billing.PaymentIntentStatusPending},
		{stripe.PaymentIntentStatusRequiresAction, billing.PaymentIntentStatusPending},
		{stripe.PaymentIntentStatusRequiresCapture, billing.PaymentIntentStatusPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.stripe), func(t *testing.T) {
			assert.Equal(t, tt.want, mapIntentStatus(tt.stripe))
		})
	}
}

func TestToPaymentIntent(t *testing.T) {
	intent := &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       2500,
		Currency:     "usd",
		Status:       stripe.PaymentIntentStatusSucceeded,
	}

	mapped := toPaymentIntent(intent)
	assert.Equal(t, "pi_123", mapped.ID)
	assert.Equal(t, "pi_123_secret", mapped.ClientSecret)
	assert.Equal(t, int64(2500), mapped.AmountCents)
	assert.Equal(t, "usd", mapped.Currency)
	assert.Equal(t, billing.PaymentIntentStatusSucceeded, mapped.Status)
}
