package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/clicloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      *CategorizedError
		status   int
		category ErrorCategory
	}{
		{"authentication", NewUnauthorizedError("missing session"), http.StatusUnauthorized, CategoryAuthentication},
		{"validation", NewValidationError([]types.FieldViolation{{Field: "prompt", Rule: "required"}}), http.StatusBadRequest, CategoryValidation},
		{"rate limit", NewRateLimitError(12), http.StatusTooManyRequests, CategoryRateLimit},
		{"upstream", NewUpstreamError("openai", fmt.Errorf("boom")), http.StatusInternalServerError, CategoryUpstream},
		{"persistence", NewPersistenceError("insert history", fmt.Errorf("boom")), http.StatusInternalServerError, CategoryPersistence},
		{"webhook", NewWebhookError("user_not_resolved", nil), http.StatusOK, CategoryWebhook},
		{"configuration", NewConfigurationError("OPENAI_API_KEY"), http.StatusInternalServerError, CategoryConfiguration},
		{"bad gateway", NewBadGatewayError("Could not fetch terms", nil), http.StatusBadGateway, CategoryUpstream},
		{"method", NewMethodNotAllowedError(), http.StatusMethodNotAllowed, CategoryValidation},
		{"media type", NewUnsupportedMediaTypeError(), http.StatusUnsupportedMediaType, CategoryValidation},
		{"too large", NewPayloadTooLargeError(10240), http.StatusRequestEntityTooLarge, CategoryValidation},
		{"conflict", NewConflictError("email already registered"), http.StatusConflict, CategoryConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestUpstreamErrorHidesCause(t *testing.T) {
	err := NewUpstreamError("openai", fmt.Errorf("401 invalid api key sk-123"))

	svc := err.ToServiceError()
	assert.Equal(t, CodeInternal, svc.Code)
	assert.NotContains(t, svc.Message, "sk-123")
	assert.Contains(t, err.Error(), "sk-123")
}

func TestWithMessageCopies(t *testing.T) {
	base := NewPersistenceError("sign acceptance", fmt.Errorf("boom"))
	renamed := base.WithMessage("Failed to finalize acceptance")

	assert.Equal(t, "Failed to finalize acceptance", renamed.Message)
	assert.NotEqual(t, base.Message, renamed.Message)
	assert.Equal(t, base.StatusCode, renamed.StatusCode)
}

func TestPayloadTooLargeMessage(t *testing.T) {
	assert.Equal(t, "Payload too large (max 10KB)", NewPayloadTooLargeError(10240).Message)
	assert.Equal(t, "Payload too large (max 1000 bytes)", NewPayloadTooLargeError(1000).Message)
}

func TestValidationErrorListsFields(t *testing.T) {
	violations := []types.FieldViolation{
		{Field: "prompt", Rule: "required"},
		{Field: "data.nicho", Rule: "max", Limit: "100"},
	}
	err := NewValidationError(violations)

	fields, ok := err.Details["fields"].([]types.FieldViolation)
	require.True(t, ok)
	assert.Len(t, fields, 2)
	assert.Equal(t, "data.nicho", fields[1].Field)
}

func TestCategorize(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Categorize(nil))
	})

	t.Run("wrapped categorized error", func(t *testing.T) {
		wrapped := fmt.Errorf("handler: %w", NewRateLimitError(3))
		got := Categorize(wrapped)
		require.NotNil(t, got)
		assert.Equal(t, CategoryRateLimit, got.Category)
		assert.True(t, IsCategory(wrapped, CategoryRateLimit))
		assert.True(t, IsUserError(wrapped))
	})

	t.Run("service error", func(t *testing.T) {
		got := Categorize(&types.ServiceError{Code: CodeUnauthorized, Message: "nope"})
		assert.Equal(t, http.StatusUnauthorized, got.StatusCode)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := Categorize(fmt.Errorf("something"))
		assert.Equal(t, CategorySystem, got.Category)
		assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
		assert.False(t, IsUserError(got))
	})
}
