package storage

import (
	"context"
	"fmt"

	"github.com/clicloop/internal/models"
)

// UsageRepository writes generation usage rows to ClickHouse
type UsageRepository struct {
	db *ClickHouseDB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *ClickHouseDB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Record appends one usage row
func (r *UsageRepository) Record(ctx context.Context, u *models.GenerationUsage) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, `INSERT INTO generation_usage`)
	if err != nil {
		return fmt.Errorf("failed to prepare usage batch: %w", err)
	}

	if err := batch.AppendStruct(u); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append usage row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send usage batch: %w", err)
	}
	return nil
}

// TotalTokensByUser sums the tokens a user consumed, for reporting
func (r *UsageRepository) TotalTokensByUser(ctx context.Context, userID string) (uint64, error) {
	var total uint64
	row := r.db.Conn().QueryRow(ctx,
		`SELECT sum(total_tokens) FROM generation_usage WHERE user_id = ?`, userID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}
