package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_CategoriesAndStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
		prefix   string
	}{
		{"validation", NewValidationError("bad pair", map[string]any{"participant_a": 3}), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"validation fields", NewValidationErrorWithMap(map[string]string{"name": "too long", "survey_data": "not an object"}), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"missing data", NewMissingDataError(7, nil), CategoryMissingData, http.StatusUnprocessableEntity, "[MISSING_DATA]"},
		{"not found", NewNotFoundError("participant", 9), CategoryNotFound, http.StatusNotFound, "[NOT_FOUND]"},
		{"unauthorized", NewUnauthorizedError("invalid token"), CategoryUnauthorized, http.StatusUnauthorized, "[UNAUTHORIZED]"},
		{"rate limit", NewRateLimitError(time.Minute), CategoryRateLimit, http.StatusTooManyRequests, "[RATE_LIMIT_EXCEEDED]"},
		{"external api", NewExternalAPIError("llm", fmt.Errorf("503")), CategoryExternalAPI, http.StatusBadGateway, "[EXTERNAL_API_ERROR]"},
		{"configuration", NewConfigurationError("missing secret", nil), CategoryConfiguration, http.StatusInternalServerError, "[CONFIGURATION_ERROR]"},
		{"cancelled", NewCancelledError("match run superseded", nil), CategoryCancelled, http.StatusConflict, "[CANCELLED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.prefix)
		})
	}
}

func TestToAppError(t *testing.T) {
	assert.Nil(t, ToAppError(nil))

	wrapped := fmt.Errorf("scoring pair: %w", NewMissingDataError(4, nil))
	assert.Equal(t, CategoryMissingData, ToAppError(wrapped).Category)

	assert.Equal(t, CategoryTimeout, ToAppError(context.DeadlineExceeded).Category)
	assert.Equal(t, CategoryTimeout, ToAppError(context.Canceled).Category)
	assert.Equal(t, CategoryNetwork, ToAppError(fmt.Errorf("dial tcp: connection refused")).Category)
	assert.Equal(t, CategoryInternal, ToAppError(fmt.Errorf("boom")).Category)
}

func TestSafeExecute(t *testing.T) {
	var recovered any
	assert.NotPanics(t, func() {
		SafeExecute(func() { panic("sweep failed") }, func(r any) { recovered = r })
	})
	assert.Equal(t, "sweep failed", recovered)

	ran := false
	SafeExecute(func() { ran = true }, nil)
	assert.True(t, ran)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewNetworkError("down", nil)))
	assert.True(t, IsRetryableError(NewExternalAPIError("llm", nil)))
	assert.False(t, IsRetryableError(NewValidationError("bad", nil)))
	assert.False(t, IsRetryableError(NewMissingDataError(1, nil)))
	assert.False(t, IsRetryableError(nil))
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("participant", 12))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"category":"not_found"`)
	assert.Contains(t, w.Body.String(), `"request_id":"req-1"`)
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) { panic("nil survey map") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"category":"internal"`)
}
