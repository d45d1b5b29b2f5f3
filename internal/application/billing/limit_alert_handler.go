package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
)

// LimitAlertHandler reacts to limit warning and limit exceeded events and
// forwards them to a notifier so tenants hear about quota pressure before
// requests start getting rejected.
type LimitAlertHandler struct {
	logger   *zap.Logger
	notifier LimitAlertNotifier
}

// LimitAlertNotifier delivers a usage limit alert to the tenant.
// Implementations can support different channels (in-app, email, webhook).
type LimitAlertNotifier interface {
	SendAlert(ctx context.Context, alert LimitAlert) error
}

// LimitAlert describes a tenant approaching or exceeding a plan limit
type LimitAlert struct {
	TenantID     string  `json:"tenant_id"`
	UsageType    string  `json:"usage_type"`
	CurrentUsage int64   `json:"current_usage"`
	Limit        int64   `json:"limit"`
	PercentUsed  float64 `json:"percent_used"`
	AlertType    string  `json:"alert_type"` // "limit_warning", "limit_exceeded"
}

// NewLimitAlertHandler creates a handler for usage limit events
func NewLimitAlertHandler(logger *zap.Logger) *LimitAlertHandler {
	return &LimitAlertHandler{
		logger: logger,
	}
}

// WithNotifier sets the notifier used to deliver alerts
func (h *LimitAlertHandler) WithNotifier(notifier LimitAlertNotifier) *LimitAlertHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LimitAlertHandler) EventTypes() []string {
	return []string{
		billingdomain.EventUsageLimitWarning,
		billingdomain.EventUsageLimitExceeded,
	}
}

// Handle processes a limit warning or limit exceeded event
func (h *LimitAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var alert LimitAlert

	switch e := event.(type) {
	case *billingdomain.UsageLimitWarningEvent:
		alert = LimitAlert{
			TenantID:     event.TenantID().String(),
			UsageType:    string(e.UsageType),
			CurrentUsage: e.CurrentUsage,
			Limit:        e.Limit,
			PercentUsed:  e.PercentUsed,
			AlertType:    "limit_warning",
		}
	case *billingdomain.UsageLimitExceededEvent:
		alert = LimitAlert{
			TenantID:     event.TenantID().String(),
			UsageType:    string(e.UsageType),
			CurrentUsage: e.CurrentUsage,
			Limit:        e.Limit,
			PercentUsed:  100,
			AlertType:    "limit_exceeded",
		}
	default:
		h.logger.Error("unexpected event type",
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	h.logger.Warn("usage limit alert",
		zap.String("tenant_id", alert.TenantID),
		zap.String("usage_type", alert.UsageType),
		zap.String("alert_type", alert.AlertType),
		zap.Int64("current_usage", alert.CurrentUsage),
		zap.Int64("limit", alert.Limit),
	)

	if h.notifier != nil {
		if err := h.notifier.SendAlert(ctx, alert); err != nil {
			// Notification failure should not fail the event handling
			h.logger.Error("failed to send limit alert",
				zap.String("tenant_id", alert.TenantID),
				zap.Error(err),
			)
		}
	}

	return nil
}

var _ shared.EventHandler = (*LimitAlertHandler)(nil)

// LoggingLimitAlertNotifier logs alerts instead of delivering them.
// Useful for development and as the default channel.
type LoggingLimitAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingLimitAlertNotifier creates a logging notifier
func NewLoggingLimitAlertNotifier(logger *zap.Logger) *LoggingLimitAlertNotifier {
	return &LoggingLimitAlertNotifier{logger: logger}
}

// SendAlert logs the alert
func (n *LoggingLimitAlertNotifier) SendAlert(_ context.Context, alert LimitAlert) error {
	n.logger.Warn("USAGE LIMIT ALERT",
		zap.String("type", alert.AlertType),
		zap.String("tenant_id", alert.TenantID),
		zap.String("usage_type", alert.UsageType),
		zap.Int64("current_usage", alert.CurrentUsage),
		zap.Int64("limit", alert.Limit),
		zap.Float64("percent_used", alert.PercentUsed),
	)
	return nil
}

var _ LimitAlertNotifier = (*LoggingLimitAlertNotifier)(nil)
