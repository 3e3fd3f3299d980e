package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryMissingData   ErrorCategory = "missing_data"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryUnauthorized  ErrorCategory = "unauthorized"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCancelled     ErrorCategory = "cancelled"
)

var categoryLabels = map[ErrorCategory]string{
	CategoryValidation:    "VALIDATION_ERROR",
	CategoryMissingData:   "MISSING_DATA",
	CategoryNotFound:      "NOT_FOUND",
	CategoryUnauthorized:  "UNAUTHORIZED",
	CategoryNetwork:       "NETWORK_ERROR",
	CategoryTimeout:       "TIMEOUT_ERROR",
	CategoryRateLimit:     "RATE_LIMIT_EXCEEDED",
	CategoryInternal:      "INTERNAL_ERROR",
	CategoryExternalAPI:   "EXTERNAL_API_ERROR",
	CategoryConfiguration: "CONFIGURATION_ERROR",
	CategoryCancelled:     "CANCELLED",
}

// AppError wraps an errbuilder error with the HTTP-facing context of a request.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	label, ok := categoryLabels[e.Category]
	if !ok {
		label = "UNKNOWN_ERROR"
	}
	return fmt.Sprintf("[%s] %s", label, e.ErrBuilder.Msg)
}

// MarshalJSON renders the response body sent to API clients.
func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error      string        `json:"error"`
		Code       string        `json:"code"`
		Category   ErrorCategory `json:"category"`
		HTTPStatus int           `json:"http_status"`
		Timestamp  time.Time     `json:"timestamp"`
		RequestID  string        `json:"request_id,omitempty"`
		StackTrace string        `json:"stack_trace,omitempty"`
	}{
		Error:      e.ErrBuilder.Msg,
		Code:       fmt.Sprint(e.ErrBuilder.ErrCode()),
		Category:   e.Category,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  e.Timestamp,
		RequestID:  e.RequestID,
		StackTrace: e.StackTrace,
	})
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func withDetails(builder *errbuilder.ErrBuilder, details map[string]any) *errbuilder.ErrBuilder {
	if len(details) == 0 {
		return builder
	}
	errorMap := errbuilder.ErrorMap{}
	for key, value := range details {
		errorMap.Set(key, fmt.Errorf("%v", value))
	}
	return builder.WithDetails(errbuilder.NewErrDetails(errorMap))
}

// NewValidationError creates a 400 error for a malformed request.
func NewValidationError(message string, details map[string]any) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)
	return NewAppError(withDetails(builder, details), CategoryValidation, http.StatusBadRequest)
}

// NewValidationErrorWithMap creates a validation error carrying one entry per invalid field.
func NewValidationErrorWithMap(validationErrors map[string]string) *AppError {
	errMap := errbuilder.ErrorMap{}
	for field, message := range validationErrors {
		errMap.Set(field, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(message))
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Multiple validation errors").
		WithDetails(errbuilder.NewErrDetails(errMap))

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewMissingDataError reports a participant whose survey answers are absent.
func NewMissingDataError(participant int, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("Survey responses missing for participant %d", participant))
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	builder = withDetails(builder, map[string]any{"assigned_number": participant})
	return NewAppError(builder, CategoryMissingData, http.StatusUnprocessableEntity)
}

// NewNotFoundError reports a missing entity such as a participant or event.
func NewNotFoundError(entity string, id any) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("%s not found", entity))
	builder = withDetails(builder, map[string]any{"id": id})
	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewUnauthorizedError rejects a request without valid admin credentials.
func NewUnauthorizedError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)
	return NewAppError(builder, CategoryUnauthorized, http.StatusUnauthorized)
}

// NewNetworkError creates a network error using errbuilder
func NewNetworkError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryNetwork, http.StatusBadGateway)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewCancelledError reports work abandoned before completion, such as a
// match run replaced by a newer one.
func NewCancelledError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryCancelled, http.StatusConflict)
}

// NewRateLimitError creates a 429 error with a retry hint.
func NewRateLimitError(retryAfter time.Duration) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded")
	builder = withDetails(builder, map[string]any{"retry_after": retryAfter.String()})
	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewExternalAPIError reports a failure of an upstream model or service.
func NewExternalAPIError(apiName string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API error", apiName))
	builder = withDetails(builder, map[string]any{"api_name": apiName})
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryExternalAPI, http.StatusBadGateway)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error")
	builder = withDetails(builder, map[string]any{"internal_details": message})
	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error")
	builder = withDetails(builder, map[string]any{"config_details": message})
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that renders the last handler error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := ToAppError(c.Errors.Last().Err)
		appErr.RequestID = c.GetHeader("X-Request-ID")
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "network is unreachable") {
		return NewNetworkError("Network connection failed", err)
	}
	if strings.Contains(errMsg, "timeout") {
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	msg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryMissingData, CategoryNotFound, CategoryUnauthorized:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(msg, "details", details.Errors)
		} else {
			logEntry.Warn(msg)
		}
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		logEntry.Info(msg, "cause", err.ErrBuilder.Unwrap())
	default:
		logEntry.Error(msg, "cause", err.ErrBuilder.Unwrap())
	}

	if err.StackTrace != "" && gin.Mode() == gin.DebugMode {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError checks if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch ToAppError(err).Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// SafeClose closes a resource and logs any error.
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}

// SafeExecute runs fn and recovers from panics.
func SafeExecute(fn func(), panicHandler func(any)) {
	defer func() {
		if r := recover(); r != nil {
			if panicHandler != nil {
				panicHandler(r)
			} else {
				slog.Error("Panic in safe execution", "panic", r)
			}
		}
	}()

	fn()
}
