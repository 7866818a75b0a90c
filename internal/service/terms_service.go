package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/retry"
	"github.com/clicloop/internal/types"
)

const (
	maxTermsVersionLength = 100
	maxTermsDocumentBytes = 1 << 20
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrTermsUnavailable is returned when the published terms document cannot be fetched
var ErrTermsUnavailable = errors.New("terms document unavailable")

// TermsRepository stores acceptance records
type TermsRepository interface {
	Insert(ctx context.Context, a *models.TermsAcceptance) error
	SetSignature(ctx context.Context, id, signature string) error
	GetByID(ctx context.Context, id string) (*models.TermsAcceptance, error)
}

// AuditRepository appends audit entries
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// TermsFetcher returns the current published terms text
type TermsFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// AcceptTermsRequest is a validated acceptance submission
type AcceptTermsRequest struct {
	Email             string
	UserID            *string
	TermsVersion      string
	Metodo            types.TermsMethod
	CheckoutSessionID *string
	TermsText         string
}

// ClientInfo is what the transport knows about the caller
type ClientInfo struct {
	IP        *string
	UserAgent *string
}

// AcceptTermsResult is the acceptance response body
type AcceptTermsResult struct {
	Success        bool   `json:"success"`
	ID             string `json:"id"`
	HMACAssinatura string `json:"hmac_assinatura"`
}

// ParseAcceptTermsRequest validates an acceptance body. Checks run in a fixed order and
// the first failure is returned.
func ParseAcceptTermsRequest(body []byte) (*AcceptTermsRequest, error) {
	if !json.Valid(body) {
		return nil, apperrors.NewInvalidInputError("Invalid JSON body", nil)
	}

	// Non-object bodies are valid JSON with no fields
	var raw map[string]json.RawMessage
	_ = json.Unmarshal(body, &raw)

	email, ok := rawJSONString(raw, "email")
	if !ok || email == "" || !emailPattern.MatchString(email) {
		return nil, apperrors.NewInvalidInputError("Invalid email", nil)
	}

	version, ok := rawJSONString(raw, "terms_version")
	if !ok || version == "" || utf8.RuneCountInString(version) > maxTermsVersionLength {
		return nil, apperrors.NewInvalidInputError("Invalid terms_version", nil)
	}

	method := types.TermsPostPayment
	if m, ok := rawJSONString(raw, "metodo"); ok {
		switch types.TermsMethod(m) {
		case types.TermsPrePayment, types.TermsPostPayment:
			method = types.TermsMethod(m)
		default:
			return nil, apperrors.NewInvalidInputError("Invalid metodo", nil)
		}
	}

	req := &AcceptTermsRequest{
		Email:        email,
		TermsVersion: version,
		Metodo:       method,
	}
	if v, ok := rawJSONString(raw, "user_id"); ok {
		req.UserID = &v
	}
	if v, ok := rawJSONString(raw, "checkout_session_id"); ok {
		req.CheckoutSessionID = &v
	}
	if v, ok := rawJSONString(raw, "terms_text"); ok {
		req.TermsText = v
	}

	return req, nil
}

// rawJSONString returns raw[key] when it is a JSON string
func rawJSONString(raw map[string]json.RawMessage, key string) (string, bool) {
	msg, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", false
	}
	return s, true
}

// HashTerms returns the hex SHA-256 of the terms text
func HashTerms(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SignaturePayload is the string covered by an acceptance signature
func SignaturePayload(id, email, termsHash string, createdAt time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", id, email, termsHash, createdAt.UTC().Format(time.RFC3339Nano))
}

// Sign returns the hex HMAC-SHA256 of the acceptance payload
func Sign(secret, id, email, termsHash string, createdAt time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(SignaturePayload(id, email, termsHash, createdAt)))
	return hex.EncodeToString(mac.Sum(nil))
}

// TermsService records terms acceptances with a two-phase insert-then-sign write
type TermsService struct {
	repo    TermsRepository
	audit   AuditRepository
	fetcher TermsFetcher
	secret  string
	logger  *logging.Logger
}

// NewTermsService creates a new terms service. fetcher and audit may be nil.
func NewTermsService(repo TermsRepository, audit AuditRepository, fetcher TermsFetcher, secret string, logger *logging.Logger) *TermsService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TermsService{
		repo:    repo,
		audit:   audit,
		fetcher: fetcher,
		secret:  secret,
		logger:  logger.WithField("component", "terms"),
	}
}

// Configured reports whether storage and the signing secret are present
func (s *TermsService) Configured() bool {
	return s.repo != nil && s.secret != ""
}

// Accept stores the acceptance, signs it, and writes a best-effort audit entry
func (s *TermsService) Accept(ctx context.Context, req *AcceptTermsRequest, info ClientInfo) (*AcceptTermsResult, error) {
	if !s.Configured() {
		return nil, apperrors.NewConfigurationError("TERMS_SERVER_SECRET")
	}

	text, err := s.termsText(ctx, req.TermsText)
	if err != nil {
		return nil, err
	}
	termsHash := HashTerms(text)

	record := &models.TermsAcceptance{
		UserID:            req.UserID,
		Email:             req.Email,
		IP:                info.IP,
		UserAgent:         info.UserAgent,
		TermsVersion:      req.TermsVersion,
		TermsText:         text,
		TermsHash:         termsHash,
		Metodo:            req.Metodo,
		CheckoutSessionID: req.CheckoutSessionID,
		Consentido:        true,
	}

	logger := s.logger.WithField("email", req.Email)

	if err := s.repo.Insert(ctx, record); err != nil {
		logger.WithError(err).Error("failed to insert terms acceptance")
		return nil, apperrors.NewPersistenceError("insert acceptance", err).WithMessage("Failed to insert acceptance")
	}

	signature := Sign(s.secret, record.ID, record.Email, termsHash, record.CreatedAt)
	if err := s.repo.SetSignature(ctx, record.ID, signature); err != nil {
		logger.WithError(err).WithField("aceite_id", record.ID).Error("failed to sign terms acceptance; record left unsigned")
		return nil, apperrors.NewPersistenceError("sign acceptance", err).WithMessage("Failed to finalize acceptance")
	}
	record.HMACAssinatura = &signature

	details := map[string]interface{}{"aceite_id": record.ID}
	if req.UserID != nil {
		details["user_id"] = *req.UserID
	}
	s.writeAudit(ctx, &models.AuditLog{
		UserID:   req.UserID,
		Acao:     models.AuditTermsAccepted,
		Detalhes: details,
	})

	return &AcceptTermsResult{
		Success:        true,
		ID:             record.ID,
		HMACAssinatura: signature,
	}, nil
}

// Verify reports whether a stored record still matches its signature
func (s *TermsService) Verify(record *models.TermsAcceptance) bool {
	if record == nil || record.HMACAssinatura == nil || s.secret == "" {
		return false
	}
	if HashTerms(record.TermsText) != record.TermsHash {
		return false
	}

	want := Sign(s.secret, record.ID, record.Email, record.TermsHash, record.CreatedAt)
	return hmac.Equal([]byte(want), []byte(*record.HMACAssinatura))
}

// VerifyByID loads a record and verifies it
func (s *TermsService) VerifyByID(ctx context.Context, id string) (bool, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Verify(record), nil
}

func (s *TermsService) termsText(ctx context.Context, provided string) (string, error) {
	if strings.TrimSpace(provided) != "" {
		return provided, nil
	}
	if s.fetcher == nil {
		return "", apperrors.NewConfigurationError("TERMS_URL")
	}

	text, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to fetch terms document")
		return "", apperrors.NewBadGatewayError("Could not fetch terms", err)
	}
	return text, nil
}

func (s *TermsService) writeAudit(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("acao", entry.Acao).Warn("failed to write audit entry")
	}
}

// HTTPTermsFetcher downloads the terms document from a URL. Transport errors and
// 5xx answers are retried with a short backoff.
type HTTPTermsFetcher struct {
	url    string
	client *http.Client
	retry  retry.Config
}

// NewHTTPTermsFetcher creates a fetcher for url
func NewHTTPTermsFetcher(url string, timeout time.Duration) *HTTPTermsFetcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTermsFetcher{url: url, client: &http.Client{Timeout: timeout}, retry: retry.DefaultConfig()}
}

func (f *HTTPTermsFetcher) Fetch(ctx context.Context) (string, error) {
	var text string
	err := retry.Do(ctx, f.retry, func(ctx context.Context, _ int) error {
		var err error
		text, err = f.fetchOnce(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTermsUnavailable, err)
	}
	return text, nil
}

func (f *HTTPTermsFetcher) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to build terms request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTermsDocumentBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
