package models

import (
	"time"
)

// AccountExport is the downloadable copy of everything stored about a user
type AccountExport struct {
	ExportedAt       time.Time          `json:"exported_at"`
	Profile          *Profile           `json:"profile"`
	Subscription     *Subscription      `json:"subscription,omitempty"`
	ContentHistory   []ContentHistory   `json:"content_history"`
	PromptHistory    []PromptHistory    `json:"prompt_history"`
	CampaignAnalysis []CampaignAnalysis `json:"campaign_analysis"`
	ChatHistory      []ChatHistory      `json:"chat_history"`
}
