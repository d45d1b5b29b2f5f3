package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/backoffice/backend/internal/domain/shared"
)

// StripeWebhookService verifies and routes inbound Stripe webhook events.
// Stripe delivers at least once, so every handler downstream is idempotent
// and unknown references are acknowledged rather than errored, which would
// only cause retries of something we can never process.
type StripeWebhookService struct {
	webhookSecret string
	planChanges   *PlanChangeService
	processed     shared.IdempotencyStore
	processedTTL  time.Duration
	logger        *zap.Logger
}

// NewStripeWebhookService creates a webhook processing service
func NewStripeWebhookService(webhookSecret string, planChanges *PlanChangeService, logger *zap.Logger) *StripeWebhookService {
	return &StripeWebhookService{
		webhookSecret: webhookSecret,
		planChanges:   planChanges,
		processedTTL:  24 * time.Hour,
		logger:        logger,
	}
}

// WithIdempotencyStore enables short-circuiting of replayed deliveries by
// Stripe event ID. Without a store, replays still converge through the
// subscription change state machine, just with more work per delivery.
func (s *StripeWebhookService) WithIdempotencyStore(store shared.IdempotencyStore) *StripeWebhookService {
	s.processed = store
	return s
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies the event signature and dispatches payment intent
// outcomes to the plan change service
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		s.logger.Error("Failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	s.logger.Info("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	if s.processed != nil {
		newlySeen, err := s.processed.MarkProcessed(ctx, event.ID, s.processedTTL)
		if err != nil {
			// Fall through and process; the change state machine absorbs
			// duplicates, a dedup outage must not drop deliveries
			s.logger.Warn("Webhook idempotency check failed",
				zap.String("event_id", event.ID), zap.Error(err))
		} else if !newlySeen {
			s.logger.Info("Skipping replayed webhook delivery",
				zap.String("event_id", event.ID))
			return &WebhookResult{
				EventID:   event.ID,
				EventType: string(event.Type),
				Processed: false,
				Message:   "Event already processed",
			}, nil
		}
	}

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err = s.handlePaymentIntentSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		err = s.handlePaymentIntentFailed(ctx, event)
	default:
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "Event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return nil, err
	}

	return result, nil
}

func (s *StripeWebhookService) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	intent, err := parsePaymentIntent(event)
	if err != nil {
		return err
	}
	return s.planChanges.HandlePaymentSucceeded(ctx, intent.ID, intent.Metadata)
}

func (s *StripeWebhookService) handlePaymentIntentFailed(ctx context.Context, event stripe.Event) error {
	intent, err := parsePaymentIntent(event)
	if err != nil {
		return err
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}
	return s.planChanges.HandlePaymentFailed(ctx, intent.ID, intent.Metadata, reason)
}

func parsePaymentIntent(event stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent from event: %w", err)
	}
	return &intent, nil
}
