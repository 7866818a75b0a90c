package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clicloop/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MaxHistoryPage caps one history listing
const MaxHistoryPage = 100

// HistoryRepository appends and lists the per-tool history rows.
// Rows are never updated; they disappear only with their owner's profile.
type HistoryRepository struct {
	db *PostgresDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *PostgresDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	*createdAt = time.Now().UTC()
}

// pageLimit maps a page size to a LIMIT argument. Zero or less means no limit (exports);
// anything else is capped at MaxHistoryPage.
func pageLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	if limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	return &limit
}

// InsertContent appends a content-generator row
func (r *HistoryRepository) InsertContent(ctx context.Context, h *models.ContentHistory) error {
	stamp(&h.ID, &h.CreatedAt)
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO content_history (id, user_id, description, format, niche, objective, generated_content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, h.ID, h.UserID, h.Description, h.Format, h.Niche, h.Objective, h.GeneratedContent, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert content history: %w", err)
	}
	return nil
}

// ListContent returns the newest content rows for userID
func (r *HistoryRepository) ListContent(ctx context.Context, userID string, limit int) ([]models.ContentHistory, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, user_id, description, format, niche, objective, generated_content, created_at
		FROM content_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list content history: %w", err)
	}

	return collect(rows, func(row pgx.CollectableRow) (models.ContentHistory, error) {
		var h models.ContentHistory
		err := row.Scan(&h.ID, &h.UserID, &h.Description, &h.Format, &h.Niche, &h.Objective, &h.GeneratedContent, &h.CreatedAt)
		return h, err
	})
}

// InsertPrompt appends a prompt-builder row
func (r *HistoryRepository) InsertPrompt(ctx context.Context, h *models.PromptHistory) error {
	stamp(&h.ID, &h.CreatedAt)
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO prompt_history (id, user_id, niche, objective, ai_type, briefing, generated_prompt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, h.ID, h.UserID, h.Niche, h.Objective, h.AIType, h.Briefing, h.GeneratedPrompt, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prompt history: %w", err)
	}
	return nil
}

// ListPrompts returns the newest prompt rows for userID
func (r *HistoryRepository) ListPrompts(ctx context.Context, userID string, limit int) ([]models.PromptHistory, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, user_id, niche, objective, ai_type, briefing, generated_prompt, created_at
		FROM prompt_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt history: %w", err)
	}

	return collect(rows, func(row pgx.CollectableRow) (models.PromptHistory, error) {
		var h models.PromptHistory
		err := row.Scan(&h.ID, &h.UserID, &h.Niche, &h.Objective, &h.AIType, &h.Briefing, &h.GeneratedPrompt, &h.CreatedAt)
		return h, err
	})
}

// InsertCampaign appends a campaign-analysis row
func (r *HistoryRepository) InsertCampaign(ctx context.Context, h *models.CampaignAnalysis) error {
	stamp(&h.ID, &h.CreatedAt)
	var results []byte
	if len(h.Results) > 0 {
		results = h.Results
	}
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO campaign_analysis (id, user_id, campaign_objective, target_audience, ad_title, ad_text,
			landing_url, total_investment, results, ai_analysis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, h.ID, h.UserID, h.CampaignObjective, h.TargetAudience, h.AdTitle, h.AdText,
		h.LandingURL, h.TotalInvestment, results, h.AIAnalysis, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert campaign analysis: %w", err)
	}
	return nil
}

// ListCampaigns returns the newest campaign analyses for userID
func (r *HistoryRepository) ListCampaigns(ctx context.Context, userID string, limit int) ([]models.CampaignAnalysis, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, user_id, campaign_objective, target_audience, ad_title, ad_text,
			landing_url, total_investment, results, ai_analysis, created_at
		FROM campaign_analysis
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign analyses: %w", err)
	}

	return collect(rows, func(row pgx.CollectableRow) (models.CampaignAnalysis, error) {
		var h models.CampaignAnalysis
		var results []byte
		err := row.Scan(&h.ID, &h.UserID, &h.CampaignObjective, &h.TargetAudience, &h.AdTitle, &h.AdText,
			&h.LandingURL, &h.TotalInvestment, &results, &h.AIAnalysis, &h.CreatedAt)
		h.Results = results
		return h, err
	})
}

// InsertChat appends a chat exchange
func (r *HistoryRepository) InsertChat(ctx context.Context, h *models.ChatHistory) error {
	stamp(&h.ID, &h.CreatedAt)
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO chat_history (id, user_id, message, response, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, h.ID, h.UserID, h.Message, h.Response, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat history: %w", err)
	}
	return nil
}

// ListChats returns the newest chat exchanges for userID
func (r *HistoryRepository) ListChats(ctx context.Context, userID string, limit int) ([]models.ChatHistory, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, user_id, message, response, created_at
		FROM chat_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}

	return collect(rows, func(row pgx.CollectableRow) (models.ChatHistory, error) {
		var h models.ChatHistory
		err := row.Scan(&h.ID, &h.UserID, &h.Message, &h.Response, &h.CreatedAt)
		return h, err
	})
}

// collect drains rows into a non-nil slice
func collect[T any](rows pgx.Rows, fn pgx.RowToFunc[T]) ([]T, error) {
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
