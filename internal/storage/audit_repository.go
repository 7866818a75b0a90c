package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clicloop/internal/models"
	"github.com/google/uuid"
)

// AuditRepository appends audit trail entries
type AuditRepository struct {
	db *PostgresDB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *PostgresDB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an audit entry. A UserID that names no identity, such as the
// free-text id a terms acceptance carries, is stored as NULL.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	var details []byte
	if entry.Detalhes != nil {
		var err error
		details, err = json.Marshal(entry.Detalhes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, acao, detalhes, created_at)
		VALUES ($1, (SELECT id FROM auth_users WHERE id::text = lower($2::text)), $3, $4, $5)
	`, entry.ID, entry.UserID, entry.Acao, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}
