package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clicloop/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const profileColumns = `id, user_id, email, name, niche, help_description,
	onboarding_completed, plano_ativo, created_at, updated_at`

// ProfileRepository handles profile persistence
type ProfileRepository struct {
	db *PostgresDB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *PostgresDB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Email,
		&p.Name,
		&p.Niche,
		&p.HelpDescription,
		&p.OnboardingCompleted,
		&p.PlanoAtivo,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByUserID retrieves the profile owned by userID
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	p, err := scanProfile(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		return nil, notFoundOr(err, "failed to get profile for %s", userID)
	}
	return p, nil
}

// Ensure links the signed-in user to an identity and creates their profile if it
// does not exist, returning the stored row. The identity is, in order: the row
// with id userID, an unlinked row with the same email (created by a payment
// before signup), which is renamed to userID, or a new row. An email held by
// another linked identity yields ErrConflict.
func (r *ProfileRepository) Ensure(ctx context.Context, userID, email, name string) (*models.Profile, error) {
	email = strings.TrimSpace(email)
	now := time.Now().UTC()

	var p *models.Profile
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := linkIdentity(ctx, tx, userID, email, name, now); err != nil {
			return err
		}

		query := `
			INSERT INTO profiles (id, user_id, email, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING ` + profileColumns

		var err error
		p, err = scanProfile(tx.QueryRow(ctx, query, uuid.New().String(), userID, email, name, now))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	return p, nil
}

func linkIdentity(ctx context.Context, tx pgx.Tx, userID, email, name string, now time.Time) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auth_users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		_, err = tx.Exec(ctx, `UPDATE auth_users SET linked_at = $2 WHERE id = $1 AND linked_at IS NULL`, userID, now)
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE auth_users
		SET id = $1, linked_at = $3, name = CASE WHEN name = '' THEN $4 ELSE name END
		WHERE lower(email) = lower($2) AND linked_at IS NULL
	`, userID, email, now, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	tag, err = tx.Exec(ctx, `
		INSERT INTO auth_users (id, email, name, email_confirmed, created_at, linked_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		ON CONFLICT DO NOTHING
	`, userID, email, name, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// lost an insert race for the same id, or the email belongs to someone else
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auth_users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrConflict
	}
	return nil
}

// Update applies account-settings changes
func (r *ProfileRepository) Update(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET name = $2, niche = $3, help_description = $4, updated_at = $5
		WHERE user_id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.Pool().QueryRow(ctx, query,
		userID, upd.Name, upd.Niche, upd.HelpDescription, time.Now().UTC()))
	if err != nil {
		return nil, notFoundOr(err, "failed to update profile")
	}
	return p, nil
}

// CompleteOnboarding stores the onboarding answers and marks onboarding done
func (r *ProfileRepository) CompleteOnboarding(ctx context.Context, userID string, answers models.OnboardingAnswers) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET niche = $2, help_description = $3, onboarding_completed = TRUE, updated_at = $4
		WHERE user_id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.Pool().QueryRow(ctx, query,
		userID, answers.Niche, answers.HelpDescription, time.Now().UTC()))
	if err != nil {
		return nil, notFoundOr(err, "failed to complete onboarding")
	}
	return p, nil
}
