// Package errors defines the categorized error taxonomy shared by handlers and services.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/clicloop/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuthentication represents a missing or invalid session (401)
	CategoryAuthentication ErrorCategory = "authentication"
	// CategoryValidation represents schema violations (400)
	CategoryValidation ErrorCategory = "validation"
	// CategoryRateLimit represents quota exhaustion (429)
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryUpstream represents language-model or other external service failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryPersistence represents database write or read failures
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryWebhook represents failures absorbed by the webhook receiver
	CategoryWebhook ErrorCategory = "webhook"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents a resource already owned by someone else (409)
	CategoryConflict ErrorCategory = "conflict"
	// CategoryConfiguration represents missing server configuration
	CategoryConfiguration ErrorCategory = "configuration"
	// CategorySystem represents any other internal failure
	CategorySystem ErrorCategory = "system"
)

// Error codes used in API responses
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeUpstream          = "UPSTREAM_ERROR"
	CodePersistence       = "PERSISTENCE_ERROR"
	CodeWebhook           = "WEBHOOK_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeUnsupportedMedia  = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeBadGateway        = "BAD_GATEWAY"
	CodeInternal          = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// WithMessage returns a copy of e with a different client-facing message
func (e *CategorizedError) WithMessage(message string) *CategorizedError {
	c := *e
	c.Message = message
	return &c
}

// ToServiceError converts to the wire representation
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewUnauthorizedError creates an authentication error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthentication,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewValidationError creates a validation error enumerating every violated field
func NewValidationError(violations []types.FieldViolation) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    fmt.Sprintf("request failed validation on %d field(s)", len(violations)),
		Details: map[string]interface{}{
			"fields": violations,
		},
	}
}

// NewInvalidInputError creates a 400 for bodies that are not decodable at all
func NewInvalidInputError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidInput,
		Message:    message,
		Cause:      cause,
	}
}

// NewRateLimitError creates a rate limit error carrying the retry-after seconds
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter),
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewUpstreamError creates an error for a failed external call.
// Clients only ever see a generic internal error.
func NewUpstreamError(service string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "Internal server error",
		Cause:      cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewBadGatewayError creates an error for an external dependency that answered badly
func NewBadGatewayError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       CodeBadGateway,
		Message:    message,
		Cause:      cause,
	}
}

// NewPersistenceError creates a database error
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       CodePersistence,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewWebhookError wraps a failure that the webhook receiver logs and acknowledges
func NewWebhookError(note string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryWebhook,
		StatusCode: http.StatusOK,
		Code:       CodeWebhook,
		Message:    note,
		Cause:      cause,
	}
}

// NewMethodNotAllowedError rejects an unsupported HTTP method
func NewMethodNotAllowedError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusMethodNotAllowed,
		Code:       CodeMethodNotAllowed,
		Message:    "Method Not Allowed",
	}
}

// NewUnsupportedMediaTypeError rejects a body that is not JSON
func NewUnsupportedMediaTypeError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusUnsupportedMediaType,
		Code:       CodeUnsupportedMedia,
		Message:    "Content-Type must be application/json",
	}
}

// NewPayloadTooLargeError rejects a body above limit bytes
func NewPayloadTooLargeError(limit int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       CodePayloadTooLarge,
		Message:    fmt.Sprintf("Payload too large (max %s)", byteSize(limit)),
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

func byteSize(n int64) string {
	if n >= 1024 && n%1024 == 0 {
		return fmt.Sprintf("%dKB", n/1024)
	}
	return fmt.Sprintf("%d bytes", n)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError reports a resource that already belongs to another account
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeConflict,
		Message:    message,
	}
}

// NewConfigurationError creates an error for missing server configuration
func NewConfigurationError(setting string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "Internal server error",
		Cause:      fmt.Errorf("missing configuration: %s", setting),
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("Internal server error", err)
}

// categorizeServiceError maps a wire error back onto a category
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	out := &CategorizedError{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}

	switch err.Code {
	case CodeUnauthorized:
		out.Category, out.StatusCode = CategoryAuthentication, http.StatusUnauthorized
	case CodeValidation, CodeInvalidInput:
		out.Category, out.StatusCode = CategoryValidation, http.StatusBadRequest
	case CodeMethodNotAllowed:
		out.Category, out.StatusCode = CategoryValidation, http.StatusMethodNotAllowed
	case CodeUnsupportedMedia:
		out.Category, out.StatusCode = CategoryValidation, http.StatusUnsupportedMediaType
	case CodePayloadTooLarge:
		out.Category, out.StatusCode = CategoryValidation, http.StatusRequestEntityTooLarge
	case CodeBadGateway:
		out.Category, out.StatusCode = CategoryUpstream, http.StatusBadGateway
	case CodeRateLimitExceeded:
		out.Category, out.StatusCode = CategoryRateLimit, http.StatusTooManyRequests
	case CodeNotFound:
		out.Category, out.StatusCode = CategoryNotFound, http.StatusNotFound
	case CodeConflict:
		out.Category, out.StatusCode = CategoryConflict, http.StatusConflict
	case CodePersistence:
		out.Category, out.StatusCode = CategoryPersistence, http.StatusInternalServerError
	default:
		out.Category, out.StatusCode = CategorySystem, http.StatusInternalServerError
	}

	return out
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsCategory reports whether err carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == category
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
