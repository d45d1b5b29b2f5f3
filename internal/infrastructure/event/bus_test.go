package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type limitEvent struct {
	shared.BaseDomainEvent
	EventName string `json:"event_name"`
}

func newLimitEvent(eventType string) *limitEvent {
	return &limitEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "UsageLimit", uuid.New(), uuid.New()),
		EventName:       "api_call",
	}
}

type recordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  string
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if h.panicWith != "" {
		panic(h.panicWith)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, evt)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.eventTypes }

func (h *recordingHandler) seen() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestBusPublish(t *testing.T) {
	t.Run("delivers to the subscribed handler", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		handler := newRecordingHandler("billing.usage_limit_exceeded")
		bus.Subscribe(handler)

		evt := newLimitEvent("billing.usage_limit_exceeded")
		require.NoError(t, bus.Publish(context.Background(), evt))

		require.Len(t, handler.seen(), 1)
		assert.Equal(t, evt, handler.seen()[0])
	})

	t.Run("delivers each event of a batch", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		handler := newRecordingHandler("billing.usage_limit_warning")
		bus.Subscribe(handler)

		err := bus.Publish(context.Background(),
			newLimitEvent("billing.usage_limit_warning"),
			newLimitEvent("billing.usage_limit_warning"),
		)

		require.NoError(t, err)
		assert.Len(t, handler.seen(), 2)
	})

	t.Run("fans out to every handler of the type", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		alerts := newRecordingHandler("billing.usage_limit_exceeded")
		audit := newRecordingHandler("billing.usage_limit_exceeded")
		bus.Subscribe(alerts)
		bus.Subscribe(audit)

		require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.usage_limit_exceeded")))

		assert.Len(t, alerts.seen(), 1)
		assert.Len(t, audit.seen(), 1)
	})

	t.Run("handler with no types receives every event", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		audit := newRecordingHandler()
		bus.Subscribe(audit)

		require.NoError(t, bus.Publish(context.Background(),
			newLimitEvent("billing.usage_limit_warning"),
			newLimitEvent("billing.plan_change_applied"),
		))

		assert.Len(t, audit.seen(), 2)
	})

	t.Run("unmatched events go nowhere", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		handler := newRecordingHandler("billing.usage_limit_warning")
		bus.Subscribe(handler)

		require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.invoice_generated")))

		assert.Empty(t, handler.seen())
	})

	t.Run("a failing handler does not stop the others", func(t *testing.T) {
		core, recorded := observer.New(zapcore.ErrorLevel)
		bus := NewBus(zap.New(core))

		failing := newRecordingHandler("billing.usage_limit_exceeded")
		failing.err = errors.New("notifier unreachable")
		healthy := newRecordingHandler("billing.usage_limit_exceeded")
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		evt := newLimitEvent("billing.usage_limit_exceeded")
		require.NoError(t, bus.Publish(context.Background(), evt))

		assert.Len(t, healthy.seen(), 1)
		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, "event handler failed", entry.Message)
		assert.Equal(t, "billing.usage_limit_exceeded", entry.ContextMap()["event_type"])
		assert.Equal(t, evt.TenantID().String(), entry.ContextMap()["tenant_id"])
	})

	t.Run("a panicking handler is contained and logged", func(t *testing.T) {
		core, recorded := observer.New(zapcore.ErrorLevel)
		bus := NewBus(zap.New(core))

		panicking := newRecordingHandler("billing.usage_limit_exceeded")
		panicking.panicWith = "nil notifier"
		healthy := newRecordingHandler("billing.usage_limit_exceeded")
		bus.Subscribe(panicking)
		bus.Subscribe(healthy)

		require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.usage_limit_exceeded")))

		assert.Len(t, healthy.seen(), 1)
		require.Equal(t, 1, recorded.Len())
		assert.Contains(t, recorded.All()[0].ContextMap()["error"], "nil notifier")
	})
}

func TestBusSubscribe(t *testing.T) {
	t.Run("explicit types override the handler's own", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		handler := newRecordingHandler("billing.usage_limit_warning")
		bus.Subscribe(handler, "billing.invoice_generated")

		require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.usage_limit_warning")))
		assert.Empty(t, handler.seen())

		require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.invoice_generated")))
		assert.Len(t, handler.seen(), 1)
	})
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	handler := newRecordingHandler("billing.usage_limit_exceeded")
	audit := newRecordingHandler()
	bus.Subscribe(handler)
	bus.Subscribe(audit)

	require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.usage_limit_exceeded")))
	require.Len(t, handler.seen(), 1)

	bus.Unsubscribe(handler)
	bus.Unsubscribe(audit)

	require.NoError(t, bus.Publish(context.Background(), newLimitEvent("billing.usage_limit_exceeded")))
	assert.Len(t, handler.seen(), 1)
	assert.Len(t, audit.seen(), 1)
}

func TestBusStartStop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Start(ctx))

	handler := newRecordingHandler("billing.usage_limit_exceeded")
	bus.Subscribe(handler)
	require.NoError(t, bus.Publish(ctx, newLimitEvent("billing.usage_limit_exceeded")))
	assert.Len(t, handler.seen(), 1)

	require.NoError(t, bus.Stop(ctx))
}
