package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRepository handles billing state
type SubscriptionRepository struct {
	db *PostgresDB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *PostgresDB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// PlanActivation describes an approved payment for one user
type PlanActivation struct {
	UserID   string
	Email    string
	Name     string
	Provider string
	OrderID  *string
}

// ActivatePlan marks the user's plan active: the profile is created or updated with
// plano_ativo = true and the subscription is upserted as active, in one transaction.
// Replaying the same activation leaves a single profile and subscription.
func (r *SubscriptionRepository) ActivatePlan(ctx context.Context, a PlanActivation) error {
	now := time.Now().UTC()

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, user_id, email, name, plano_ativo, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, $5, $5)
			ON CONFLICT (user_id) DO UPDATE
			SET plano_ativo = TRUE, updated_at = EXCLUDED.updated_at
		`, uuid.New().String(), a.UserID, a.Email, a.Name, now)
		if err != nil {
			return fmt.Errorf("failed to upsert profile: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO subscriptions (id, user_id, status, provider, provider_order_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (user_id) DO UPDATE
			SET status = EXCLUDED.status,
			    provider = EXCLUDED.provider,
			    provider_order_id = COALESCE(EXCLUDED.provider_order_id, subscriptions.provider_order_id),
			    updated_at = EXCLUDED.updated_at
		`, uuid.New().String(), a.UserID, types.SubscriptionActive, a.Provider, a.OrderID, now)
		if err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		return nil
	})
}

// GetByUserID retrieves the subscription owned by userID
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, status, provider, provider_order_id, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`

	var s models.Subscription
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.Status,
		&s.Provider,
		&s.ProviderOrderID,
		&s.CurrentPeriodEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "failed to get subscription for %s", userID)
	}
	return &s, nil
}
