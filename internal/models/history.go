package models

import (
	"encoding/json"
	"time"
)

// ContentHistory is one generated social-media content entry
type ContentHistory struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	Description      string    `json:"description" db:"description" validate:"required,max=1000"`
	Format           string    `json:"format" db:"format" validate:"required,max=50"`
	Niche            *string   `json:"niche" db:"niche" validate:"omitempty,max=100"`
	Objective        *string   `json:"objective" db:"objective" validate:"omitempty,max=200"`
	GeneratedContent *string   `json:"generated_content" db:"generated_content"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// PromptHistory is one prompt-builder entry
type PromptHistory struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Niche           string    `json:"niche" db:"niche" validate:"required,max=100"`
	Objective       string    `json:"objective" db:"objective" validate:"required,max=200"`
	AIType          string    `json:"ai_type" db:"ai_type" validate:"required,max=50"`
	Briefing        string    `json:"briefing" db:"briefing" validate:"required,max=2000"`
	GeneratedPrompt *string   `json:"generated_prompt" db:"generated_prompt"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// CampaignAnalysis is one campaign-analyzer entry.
// Results holds the raw metric set as submitted.
type CampaignAnalysis struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	CampaignObjective string          `json:"campaign_objective" db:"campaign_objective" validate:"required,max=200"`
	TargetAudience    string          `json:"target_audience" db:"target_audience" validate:"required,max=500"`
	AdTitle           string          `json:"ad_title" db:"ad_title" validate:"required,max=200"`
	AdText            string          `json:"ad_text" db:"ad_text" validate:"required,max=2000"`
	LandingURL        *string         `json:"landing_url" db:"landing_url" validate:"omitempty,max=500,url"`
	TotalInvestment   *float64        `json:"total_investment" db:"total_investment" validate:"omitempty,gte=0"`
	Results           json.RawMessage `json:"results" db:"results"`
	AIAnalysis        *string         `json:"ai_analysis" db:"ai_analysis"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// ChatHistory is one chat exchange
type ChatHistory struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Message   string    `json:"message" db:"message" validate:"required,max=4000"`
	Response  *string   `json:"response" db:"response"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
