package models

import (
	"time"
)

// GenerationUsage is one successful language-model call, for usage attribution
type GenerationUsage struct {
	UserID           string    `json:"user_id" ch:"user_id"`
	Kind             string    `json:"kind" ch:"kind"`
	Model            string    `json:"model" ch:"model"`
	PromptTokens     uint32    `json:"prompt_tokens" ch:"prompt_tokens"`
	CompletionTokens uint32    `json:"completion_tokens" ch:"completion_tokens"`
	TotalTokens      uint32    `json:"total_tokens" ch:"total_tokens"`
	CreatedAt        time.Time `json:"created_at" ch:"created_at"`
}
