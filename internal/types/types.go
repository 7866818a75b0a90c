// Package types provides common type definitions for the ClicLoop backend.
package types

import "time"

// ToolKind selects the instruction template used by the AI proxy
type ToolKind string

const (
	ToolContent  ToolKind = "content"
	ToolPrompt   ToolKind = "prompt"
	ToolCampaign ToolKind = "campaign"
	ToolChat     ToolKind = "chat"
)

// AllToolKinds lists every supported tool kind in display order
var AllToolKinds = []ToolKind{ToolContent, ToolPrompt, ToolCampaign, ToolChat}

// Valid reports whether k is one of the four fixed tool kinds
func (k ToolKind) Valid() bool {
	switch k {
	case ToolContent, ToolPrompt, ToolCampaign, ToolChat:
		return true
	default:
		return false
	}
}

// TermsMethod records when in the purchase flow consent was given
type TermsMethod string

const (
	TermsPrePayment  TermsMethod = "pre-payment"
	TermsPostPayment TermsMethod = "post-payment"
)

// SubscriptionStatus represents the payment state of a subscription
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Usage is the token accounting returned by the language-model API
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FieldViolation describes one failed schema rule on a request field
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Limit   string `json:"limit,omitempty"`
	Message string `json:"message"`
}

// RateLimitDecision is the outcome of a single limiter check
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the oldest request in the window expires
	Reset time.Time
}

// RetryAfter returns the time until Reset, never less than one second
func (d *RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	wait := d.Reset.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
