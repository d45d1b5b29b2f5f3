package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/backoffice/backend/internal/interfaces/http/dto"
)

type usageHandlerFixture struct {
	recorder *mockUsageRecorder
	limits   *mockLimitChecker
	exporter *mockUsageExporter
	router   *gin.Engine
	tenantID uuid.UUID
	userID   uuid.UUID
}

// newUsageHandlerFixture wires the usage handler into a test router with
// JWT context injected, the way the auth middleware would in production
func newUsageHandlerFixture(t *testing.T, authenticated bool) *usageHandlerFixture {
	t.Helper()

	f := &usageHandlerFixture{
		recorder: new(mockUsageRecorder),
		limits:   new(mockLimitChecker),
		exporter: new(mockUsageExporter),
		tenantID: uuid.New(),
		userID:   uuid.New(),
	}

	h := NewUsageHandler(f.recorder, f.limits, f.exporter)

	f.router = gin.New()
	if authenticated {
		f.router.Use(func(c *gin.Context) {
			setJWTContext(c, f.tenantID, f.userID)
			c.Next()
		})
	}
	f.router.POST("/usage/track", h.TrackUsage)
	f.router.GET("/usage/limits", h.GetLimits)
	f.router.GET("/usage/events", h.ListEvents)
	f.router.GET("/usage/export", h.ExportEvents)

	return f
}

func (f *usageHandlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestTrackUsageSuccess(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	event, err := billing.NewUsageEvent(f.tenantID, billing.EventTypeAPICall, 3, time.Now())
	require.NoError(t, err)

	f.limits.On("EnforceLimit", mock.Anything, f.tenantID, billing.EventTypeAPICall).Return(nil)
	f.recorder.On("RecordUsage", mock.Anything, mock.MatchedBy(func(input billingapp.RecordUsageInput) bool {
		return input.TenantID == f.tenantID &&
			input.Type == billing.EventTypeAPICall &&
			input.Quantity == 3 &&
			input.UserID != nil && *input.UserID == f.userID
	})).Return(event, nil)

	w := f.do("POST", "/usage/track", gin.H{
		"event_type": "API_CALL",
		"quantity":   3,
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "API_CALL", data["event_type"])
	assert.Equal(t, float64(3), data["quantity"])
	assert.Equal(t, f.tenantID.String(), data["tenant_id"])

	f.limits.AssertExpectations(t)
	f.recorder.AssertExpectations(t)
}

func TestTrackUsageOverLimit(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	limit := int64(1000)
	f.limits.On("EnforceLimit", mock.Anything, f.tenantID, billing.EventTypeAPICall).
		Return(&billingapp.QuotaExceededError{
			Result: billing.LimitCheckResult{
				Type:         billing.EventTypeAPICall,
				CurrentUsage: 1000,
				Limit:        &limit,
				OverLimit:    true,
			},
		})

	w := f.do("POST", "/usage/track", gin.H{"event_type": "API_CALL"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeUsageLimitExceeded, resp.Error.Code)

	// The response carries the tenant's limit standing
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1000), data["current_usage"])
	assert.Equal(t, true, data["is_over_limit"])

	f.recorder.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything)
}

func TestTrackUsageInvalidEventType(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	w := f.do("POST", "/usage/track", gin.H{"event_type": "teleport"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrCodeInvalidEventType, resp.Error.Code)
}

func TestTrackUsageMissingEventType(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	w := f.do("POST", "/usage/track", gin.H{"quantity": 1})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackUsageNegativeQuantity(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	w := f.do("POST", "/usage/track", gin.H{"event_type": "API_CALL", "quantity": -5})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackUsageUnauthenticated(t *testing.T) {
	f := newUsageHandlerFixture(t, false)

	w := f.do("POST", "/usage/track", gin.H{"event_type": "API_CALL"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetLimits(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	limit := int64(10)
	remaining := int64(4)
	f.limits.On("CheckAllLimits", mock.Anything, f.tenantID).Return([]billing.LimitCheckResult{
		{Type: billing.EventTypeAPICall, CurrentUsage: 6, Limit: &limit, Remaining: &remaining, PercentUsed: 60},
		{Type: billing.EventTypeStorageUsage, Unlimited: true},
	}, nil)

	w := f.do("GET", "/usage/limits", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, f.tenantID.String(), data["tenant_id"])
	limits := data["limits"].([]interface{})
	assert.Len(t, limits, 2)
}

func TestGetLimitsError(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	f.limits.On("CheckAllLimits", mock.Anything, f.tenantID).Return(nil, shared.ErrNotFound)

	w := f.do("GET", "/usage/limits", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEvents(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	event, err := billing.NewUsageEvent(f.tenantID, billing.EventTypeDocumentUpload, 1, time.Now())
	require.NoError(t, err)

	f.recorder.On("ListEvents", mock.Anything, f.tenantID, mock.MatchedBy(func(filter billing.UsageEventFilter) bool {
		return filter.Page == 2 && filter.PageSize == 10 &&
			filter.Type != nil && *filter.Type == billing.EventTypeDocumentUpload
	})).Return(shared.NewPaginated([]billing.UsageEvent{*event}, 11, 2, 10), nil)

	w := f.do("GET", "/usage/events?page=2&page_size=10&event_type=DOCUMENT_UPLOAD", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Page)

	items := resp.Data.([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "DOCUMENT_UPLOAD", first["event_type"])
}

func TestListEventsInvalidEventType(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	w := f.do("GET", "/usage/events?event_type=bogus", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEventsInvalidTimeRange(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	w := f.do("GET", "/usage/events?start_time=yesterday", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportEventsCSV(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	f.exporter.On("ExportCSV", mock.Anything, f.tenantID, mock.Anything).
		Return([]byte("Recorded At,Event Type\n"), nil)

	w := f.do("GET", "/usage/export?format=csv", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, w.Body.String(), "Recorded At")
}

func TestExportEventsXLSX(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	f.exporter.On("ExportXLSX", mock.Anything, f.tenantID, mock.Anything).
		Return([]byte{0x50, 0x4b}, nil)

	w := f.do("GET", "/usage/export?format=xlsx", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
}

func TestExportEventsDefaultsToCSV(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	f.exporter.On("ExportCSV", mock.Anything, f.tenantID, mock.Anything).
		Return([]byte("header\n"), nil)

	w := f.do("GET", "/usage/export", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	f.exporter.AssertExpectations(t)
}

func TestExportEventsInvalidFormat(t *testing.T) {
	f := newUsageHandlerFixture(t, true)

	w := f.do("GET", "/usage/export?format=pdf", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
