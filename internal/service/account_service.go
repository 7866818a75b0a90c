package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/storage"
)

// DefaultHistoryPage is the page size when a listing does not ask for one
const DefaultHistoryPage = 20

// ProfileRepository interface for profile data operations
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Ensure(ctx context.Context, userID, email, name string) (*models.Profile, error)
	Update(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.Profile, error)
	CompleteOnboarding(ctx context.Context, userID string, answers models.OnboardingAnswers) (*models.Profile, error)
}

// HistoryRepository interface for the per-tool history rows
type HistoryRepository interface {
	InsertContent(ctx context.Context, h *models.ContentHistory) error
	ListContent(ctx context.Context, userID string, limit int) ([]models.ContentHistory, error)
	InsertPrompt(ctx context.Context, h *models.PromptHistory) error
	ListPrompts(ctx context.Context, userID string, limit int) ([]models.PromptHistory, error)
	InsertCampaign(ctx context.Context, h *models.CampaignAnalysis) error
	ListCampaigns(ctx context.Context, userID string, limit int) ([]models.CampaignAnalysis, error)
	InsertChat(ctx context.Context, h *models.ChatHistory) error
	ListChats(ctx context.Context, userID string, limit int) ([]models.ChatHistory, error)
}

// SubscriptionReader reads billing state
type SubscriptionReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
}

// IdentityDeleter removes a login and everything it owns
type IdentityDeleter interface {
	Delete(ctx context.Context, id string) error
}

// UsageReader reads the generation ledger
type UsageReader interface {
	TotalTokensByUser(ctx context.Context, userID string) (uint64, error)
}

// Billing is the billing page view. TokensUsed is absent when no ledger is configured
// or it could not be read.
type Billing struct {
	PlanoAtivo   bool                 `json:"plano_ativo"`
	Subscription *models.Subscription `json:"subscription"`
	TokensUsed   *uint64              `json:"tokens_used,omitempty"`
}

// AccountService handles the dashboard's profile, history, billing and account operations.
// Every operation is scoped to the caller's user id.
type AccountService struct {
	profiles      ProfileRepository
	history       HistoryRepository
	subscriptions SubscriptionReader
	identities    IdentityDeleter
	audit         AuditRepository
	usage         UsageReader
	logger        *logging.Logger
	now           func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(
	profiles ProfileRepository,
	history HistoryRepository,
	subscriptions SubscriptionReader,
	identities IdentityDeleter,
	audit AuditRepository,
	logger *logging.Logger,
) *AccountService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AccountService{
		profiles:      profiles,
		history:       history,
		subscriptions: subscriptions,
		identities:    identities,
		audit:         audit,
		logger:        logger.WithField("component", "account"),
		now:           time.Now,
	}
}

// WithUsage adds the caller's token total to Billing
func (s *AccountService) WithUsage(usage UsageReader) *AccountService {
	s.usage = usage
	return s
}

// GetProfile returns the caller's profile
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageError(err, "profile", userID, "get profile")
	}
	return p, nil
}

// EnsureProfile creates the caller's profile at signup, or returns the existing one.
// The caller's identity is registered with it, taking over the identity a payment
// made before signup created for the same email.
func (s *AccountService) EnsureProfile(ctx context.Context, userID, email, name string) (*models.Profile, error) {
	email = strings.TrimSpace(email)
	if v := validateVar("email", email, "required,email,max=254"); len(v) > 0 {
		return nil, apperrors.NewValidationError(v)
	}
	if name == "" {
		name = email
	}

	p, err := s.profiles.Ensure(ctx, userID, email, name)
	if errors.Is(err, storage.ErrConflict) {
		return nil, apperrors.NewConflictError("email already registered to another account")
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("ensure profile", err)
	}
	return p, nil
}

// UpdateProfile saves account settings
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.Profile, error) {
	if v := ValidateStruct(upd, ""); len(v) > 0 {
		return nil, apperrors.NewValidationError(v)
	}

	p, err := s.profiles.Update(ctx, userID, upd)
	if err != nil {
		return nil, storageError(err, "profile", userID, "update profile")
	}

	fields := []string{"name"}
	if upd.Niche != nil {
		fields = append(fields, "niche")
	}
	if upd.HelpDescription != nil {
		fields = append(fields, "help_description")
	}
	s.writeAudit(ctx, userID, models.AuditProfileUpdated, map[string]interface{}{"campos": fields})

	return p, nil
}

// CompleteOnboarding stores the onboarding answers and marks onboarding done
func (s *AccountService) CompleteOnboarding(ctx context.Context, userID string, answers models.OnboardingAnswers) (*models.Profile, error) {
	if v := ValidateStruct(answers, ""); len(v) > 0 {
		return nil, apperrors.NewValidationError(v)
	}

	p, err := s.profiles.CompleteOnboarding(ctx, userID, answers)
	if err != nil {
		return nil, storageError(err, "profile", userID, "complete onboarding")
	}
	return p, nil
}

// SaveContent appends a content-generator row for the caller
func (s *AccountService) SaveContent(ctx context.Context, userID string, h *models.ContentHistory) error {
	h.UserID = userID
	return s.save(ctx, h, "content history", func() error { return s.history.InsertContent(ctx, h) })
}

// SavePrompt appends a prompt-builder row for the caller
func (s *AccountService) SavePrompt(ctx context.Context, userID string, h *models.PromptHistory) error {
	h.UserID = userID
	return s.save(ctx, h, "prompt history", func() error { return s.history.InsertPrompt(ctx, h) })
}

// SaveCampaign appends a campaign-analyzer row for the caller
func (s *AccountService) SaveCampaign(ctx context.Context, userID string, h *models.CampaignAnalysis) error {
	h.UserID = userID
	if h.LandingURL != nil && *h.LandingURL == "" {
		h.LandingURL = nil
	}
	return s.save(ctx, h, "campaign analysis", func() error { return s.history.InsertCampaign(ctx, h) })
}

// SaveChat appends a chat exchange for the caller
func (s *AccountService) SaveChat(ctx context.Context, userID string, h *models.ChatHistory) error {
	h.UserID = userID
	return s.save(ctx, h, "chat history", func() error { return s.history.InsertChat(ctx, h) })
}

func (s *AccountService) save(ctx context.Context, row interface{}, what string, insert func() error) error {
	if v := ValidateStruct(row, ""); len(v) > 0 {
		return apperrors.NewValidationError(v)
	}
	if err := insert(); err != nil {
		s.logger.WithError(err).Error("failed to save " + what)
		return apperrors.NewPersistenceError("insert "+what, err)
	}
	return nil
}

// ListContent returns the caller's newest content rows
func (s *AccountService) ListContent(ctx context.Context, userID string, limit int) ([]models.ContentHistory, error) {
	rows, err := s.history.ListContent(ctx, userID, listLimit(limit))
	return nonNil(rows), wrapList(err, "content history")
}

// ListPrompts returns the caller's newest prompt-builder rows
func (s *AccountService) ListPrompts(ctx context.Context, userID string, limit int) ([]models.PromptHistory, error) {
	rows, err := s.history.ListPrompts(ctx, userID, listLimit(limit))
	return nonNil(rows), wrapList(err, "prompt history")
}

// ListCampaigns returns the caller's newest campaign analyses
func (s *AccountService) ListCampaigns(ctx context.Context, userID string, limit int) ([]models.CampaignAnalysis, error) {
	rows, err := s.history.ListCampaigns(ctx, userID, listLimit(limit))
	return nonNil(rows), wrapList(err, "campaign analysis")
}

// ListChats returns the caller's newest chat exchanges
func (s *AccountService) ListChats(ctx context.Context, userID string, limit int) ([]models.ChatHistory, error) {
	rows, err := s.history.ListChats(ctx, userID, listLimit(limit))
	return nonNil(rows), wrapList(err, "chat history")
}

// Billing returns the caller's plan flag and subscription, if any
func (s *AccountService) Billing(ctx context.Context, userID string) (*Billing, error) {
	out := &Billing{}

	p, err := s.profiles.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		out.PlanoAtivo = p.PlanoAtivo
	case !errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.NewPersistenceError("get profile", err)
	}

	sub, err := s.subscriptions.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		out.Subscription = sub
	case !errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.NewPersistenceError("get subscription", err)
	}

	if s.usage != nil {
		total, err := s.usage.TotalTokensByUser(ctx, userID)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("failed to read token usage")
		} else {
			out.TokensUsed = &total
		}
	}

	return out, nil
}

// Export collects everything stored about the caller
func (s *AccountService) Export(ctx context.Context, userID string) (*models.AccountExport, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	billing, err := s.Billing(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &models.AccountExport{
		ExportedAt:   s.now().UTC(),
		Profile:      profile,
		Subscription: billing.Subscription,
	}

	// limit 0 lists every row
	if out.ContentHistory, err = s.history.ListContent(ctx, userID, 0); err != nil {
		return nil, wrapList(err, "content history")
	}
	if out.PromptHistory, err = s.history.ListPrompts(ctx, userID, 0); err != nil {
		return nil, wrapList(err, "prompt history")
	}
	if out.CampaignAnalysis, err = s.history.ListCampaigns(ctx, userID, 0); err != nil {
		return nil, wrapList(err, "campaign analysis")
	}
	if out.ChatHistory, err = s.history.ListChats(ctx, userID, 0); err != nil {
		return nil, wrapList(err, "chat history")
	}
	out.ContentHistory = nonNil(out.ContentHistory)
	out.PromptHistory = nonNil(out.PromptHistory)
	out.CampaignAnalysis = nonNil(out.CampaignAnalysis)
	out.ChatHistory = nonNil(out.ChatHistory)

	s.writeAudit(ctx, userID, models.AuditDataExported, nil)

	return out, nil
}

// ExportFilename is the attachment name of an export taken at t
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("meus-dados-clicloop-%s.json", t.UTC().Format("2006-01-02"))
}

// DeleteAccount audits the deletion and then removes the identity, which cascades
// to the profile, history and subscription
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	s.writeAudit(ctx, userID, models.AuditAccountDeleted, nil)

	if err := s.identities.Delete(ctx, userID); err != nil {
		return storageError(err, "account", userID, "delete account")
	}

	s.logger.WithField("user_id", userID).Info("account deleted")
	return nil
}

func (s *AccountService) writeAudit(ctx context.Context, userID, action string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	uid := userID
	err := s.audit.Insert(ctx, &models.AuditLog{UserID: &uid, Acao: action, Detalhes: details})
	if err != nil {
		s.logger.WithError(err).WithField("acao", action).Warn("failed to write audit entry")
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryPage
	}
	if limit > storage.MaxHistoryPage {
		return storage.MaxHistoryPage
	}
	return limit
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

func wrapList(err error, what string) error {
	if err == nil {
		return nil
	}
	return apperrors.NewPersistenceError("list "+what, err)
}

func storageError(err error, resource, id, op string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NewNotFoundError(resource, id)
	}
	return apperrors.NewPersistenceError(op, err)
}
