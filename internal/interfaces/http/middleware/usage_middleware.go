// Package middleware provides HTTP middleware for the billing backend.
package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UsageRecorder records a metered usage event. Satisfied by the
// application layer's usage service.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, input billingapp.RecordUsageInput) (*billing.UsageEvent, error)
}

// UsageTrackerConfig holds configuration for usage tracking middleware.
type UsageTrackerConfig struct {
	// Enabled controls whether usage tracking is active.
	Enabled bool
	// BufferSize is the size of the async write buffer.
	BufferSize int
	// WriteTimeout bounds each recording call.
	WriteTimeout time.Duration
	// Logger for middleware logging.
	Logger *zap.Logger
	// SkipPaths are paths that should not be tracked.
	SkipPaths []string
}

// DefaultUsageTrackerConfig returns default usage tracker configuration.
func DefaultUsageTrackerConfig() UsageTrackerConfig {
	return UsageTrackerConfig{
		Enabled:      true,
		BufferSize:   10000,
		WriteTimeout: 10 * time.Second,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/api/v1/health",
		},
	}
}

// UsageTracker collects API call usage off the request path. Requests only
// enqueue into a buffered channel; a background worker records each entry
// through the usage service, so metering never adds write latency to the
// request and a full buffer drops records instead of blocking.
type UsageTracker struct {
	config   UsageTrackerConfig
	recorder UsageRecorder
	buffer   chan billingapp.RecordUsageInput
	logger   *zap.Logger
	wg       sync.WaitGroup
	stopCh   chan struct{}
	mu       sync.RWMutex
	running  bool
}

// NewUsageTracker creates a new usage tracker with the given configuration.
func NewUsageTracker(cfg UsageTrackerConfig, recorder UsageRecorder) *UsageTracker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UsageTracker{
		config:   cfg,
		recorder: recorder,
		buffer:   make(chan billingapp.RecordUsageInput, cfg.BufferSize),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background writer goroutine.
func (t *UsageTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}

	t.running = true
	t.wg.Add(1)
	go t.writer()

	t.logger.Info("usage tracker started",
		zap.Int("buffer_size", t.config.BufferSize),
	)
}

// Stop gracefully stops the usage tracker, draining buffered records.
func (t *UsageTracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopCh)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("usage tracker stopped")
		return nil
	case <-ctx.Done():
		t.logger.Warn("usage tracker stop timed out")
		return ctx.Err()
	}
}

// writer is the background goroutine that records buffered usage.
func (t *UsageTracker) writer() {
	defer t.wg.Done()

	record := func(input billingapp.RecordUsageInput) {
		ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
		defer cancel()

		if _, err := t.recorder.RecordUsage(ctx, input); err != nil {
			t.logger.Error("failed to record tracked usage",
				zap.String("tenant_id", input.TenantID.String()),
				zap.String("event_type", string(input.Type)),
				zap.Error(err),
			)
		}
	}

	for {
		select {
		case input := <-t.buffer:
			record(input)
		case <-t.stopCh:
			// Drain whatever is left in the buffer
			for {
				select {
				case input := <-t.buffer:
					record(input)
				default:
					return
				}
			}
		}
	}
}

// Track adds a usage record to the buffer for async writing.
// Returns true if the record was added, false if it was dropped.
func (t *UsageTracker) Track(input billingapp.RecordUsageInput) bool {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()

	if !running || !t.config.Enabled {
		return false
	}

	select {
	case t.buffer <- input:
		return true
	default:
		t.logger.Warn("usage buffer full, dropping record",
			zap.String("event_type", string(input.Type)),
			zap.String("tenant_id", input.TenantID.String()),
		)
		return false
	}
}

// TrackAPIUsage returns a Gin middleware that meters each API call as an
// API_CALL usage event. Place it after authentication so tenant and user
// claims are available.
func TrackAPIUsage(tracker *UsageTracker) gin.HandlerFunc {
	if tracker == nil || !tracker.config.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range tracker.config.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		start := time.Now()

		c.Next()

		tenantIDStr := GetJWTTenantID(c)
		if tenantIDStr == "" {
			tenantIDStr = GetTenantID(c)
		}
		if tenantIDStr == "" {
			return
		}

		tenantID, err := uuid.Parse(tenantIDStr)
		if err != nil {
			return
		}

		input := billingapp.RecordUsageInput{
			TenantID:   tenantID,
			Type:       billing.EventTypeAPICall,
			Quantity:   1,
			ResourceID: getRoutePattern(c),
			Metadata: map[string]interface{}{
				"method":           c.Request.Method,
				"status_code":      c.Writer.Status(),
				"response_time_ms": time.Since(start).Milliseconds(),
				"client_ip":        c.ClientIP(),
			},
		}

		if userIDStr := GetJWTUserID(c); userIDStr != "" {
			if userID, err := uuid.Parse(userIDStr); err == nil {
				input.UserID = &userID
			}
		}

		tracker.Track(input)
	}
}

// getRoutePattern returns the registered route pattern, falling back to
// the raw path for unmatched requests.
func getRoutePattern(c *gin.Context) string {
	if pattern := c.FullPath(); pattern != "" {
		return pattern
	}
	return c.Request.URL.Path
}

// UsageTrackerStats returns current statistics about the usage tracker.
type UsageTrackerStats struct {
	BufferSize     int
	BufferCapacity int
	BufferUsage    float64
	Running        bool
}

// Stats returns current statistics about the usage tracker.
func (t *UsageTracker) Stats() UsageTrackerStats {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()

	bufferLen := len(t.buffer)
	bufferCap := cap(t.buffer)

	var usage float64
	if bufferCap > 0 {
		usage = float64(bufferLen) / float64(bufferCap) * 100
	}

	return UsageTrackerStats{
		BufferSize:     bufferLen,
		BufferCapacity: bufferCap,
		BufferUsage:    usage,
		Running:        running,
	}
}

// IsRunning returns whether the usage tracker is currently running.
func (t *UsageTracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
