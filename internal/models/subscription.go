package models

import (
	"time"

	"github.com/clicloop/internal/types"
)

// Subscription is the billing state of a user, one per user
type Subscription struct {
	ID               string                   `json:"id" db:"id"`
	UserID           string                   `json:"user_id" db:"user_id"`
	Status           types.SubscriptionStatus `json:"status" db:"status"`
	Provider         string                   `json:"provider" db:"provider"`
	ProviderOrderID  *string                  `json:"provider_order_id,omitempty" db:"provider_order_id"`
	CurrentPeriodEnd *time.Time               `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt        time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at" db:"updated_at"`
}
