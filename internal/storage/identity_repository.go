package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clicloop/internal/models"
	"github.com/google/uuid"
)

// IdentityRepository is the identity directory: one row per registered login.
// Deleting an identity cascades to the profile, history and subscription.
type IdentityRepository struct {
	db *PostgresDB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *PostgresDB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// GetByEmail looks an identity up by email, case-insensitively
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.AuthUser, error) {
	query := `
		SELECT id, email, name, email_confirmed, created_at
		FROM auth_users
		WHERE lower(email) = lower($1)
	`

	var u models.AuthUser
	err := r.db.Pool().QueryRow(ctx, query, strings.TrimSpace(email)).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.EmailConfirmed,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "failed to get identity by email")
	}

	return &u, nil
}

// GetByID retrieves an identity by id
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.AuthUser, error) {
	query := `
		SELECT id, email, name, email_confirmed, created_at
		FROM auth_users
		WHERE id = $1
	`

	var u models.AuthUser
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.EmailConfirmed,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "failed to get identity %s", id)
	}

	return &u, nil
}

// Create inserts a new identity. A duplicate email yields ErrConflict.
func (r *IdentityRepository) Create(ctx context.Context, user *models.AuthUser) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO auth_users (id, email, name, email_confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.EmailConfirmed,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// Delete removes an identity and, through foreign keys, everything it owns
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
