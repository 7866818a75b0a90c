package storage

import (
	"context"
	"fmt"

	"github.com/clicloop/internal/models"
)

// TermsRepository stores consent records.
// The signature column is written once, after the row exists.
type TermsRepository struct {
	db *PostgresDB
}

// NewTermsRepository creates a new terms repository
func NewTermsRepository(db *PostgresDB) *TermsRepository {
	return &TermsRepository{db: db}
}

// Insert stores an unsigned acceptance and fills in the server-assigned ID and CreatedAt
func (r *TermsRepository) Insert(ctx context.Context, a *models.TermsAcceptance) error {
	query := `
		INSERT INTO terms_acceptances (user_id, email, ip, user_agent, terms_version, terms_text,
			terms_hash, metodo, checkout_session_id, consentido)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		a.UserID,
		a.Email,
		a.IP,
		a.UserAgent,
		a.TermsVersion,
		a.TermsText,
		a.TermsHash,
		a.Metodo,
		a.CheckoutSessionID,
		a.Consentido,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert terms acceptance: %w", err)
	}

	return nil
}

// SetSignature writes the signature of a row that has none yet
func (r *TermsRepository) SetSignature(ctx context.Context, id, signature string) error {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE terms_acceptances
		SET hmac_assinatura = $2
		WHERE id = $1 AND hmac_assinatura IS NULL
	`, id, signature)
	if err != nil {
		return fmt.Errorf("failed to sign terms acceptance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves an acceptance record
func (r *TermsRepository) GetByID(ctx context.Context, id string) (*models.TermsAcceptance, error) {
	query := `
		SELECT id, user_id, email, ip, user_agent, terms_version, terms_text, terms_hash, metodo,
			checkout_session_id, consentido, hmac_assinatura, created_at
		FROM terms_acceptances
		WHERE id = $1
	`

	var a models.TermsAcceptance
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.UserID,
		&a.Email,
		&a.IP,
		&a.UserAgent,
		&a.TermsVersion,
		&a.TermsText,
		&a.TermsHash,
		&a.Metodo,
		&a.CheckoutSessionID,
		&a.Consentido,
		&a.HMACAssinatura,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "failed to get terms acceptance %s", id)
	}
	return &a, nil
}
