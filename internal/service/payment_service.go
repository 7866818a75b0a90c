package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/storage"
)

// Webhook acknowledgement notes
const (
	NoteInvalidJSON       = "invalid_json"
	NoteMissingEmail      = "missing_email"
	NoteUserNotResolved   = "user_not_resolved"
	NotePersistenceFailed = "persistence_failed"
	NoteException         = "exception"
)

const paymentProvider = "kiwify"

// IdentityDirectory resolves and creates logins by email
type IdentityDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.AuthUser, error)
	Create(ctx context.Context, user *models.AuthUser) error
}

// PlanActivator marks a user's plan active
type PlanActivator interface {
	ActivatePlan(ctx context.Context, a storage.PlanActivation) error
}

// PaymentEvent is the provider-independent view of a webhook payload
type PaymentEvent struct {
	Status  string
	Email   string
	Name    string
	OrderID *string
}

// Approved reports whether the event should activate a plan
func (e PaymentEvent) Approved() bool {
	return e.Status == "approved" || e.Status == "paid"
}

// WebhookAck is the webhook response body. The receiver always answers 200 with one.
type WebhookAck struct {
	OK      bool   `json:"ok"`
	Ignored bool   `json:"ignored,omitempty"`
	Note    string `json:"note,omitempty"`
}

// NormalizePaymentEvent reads status, email, name and order id from the field aliases
// used by the payment provider's payload versions
func NormalizePaymentEvent(payload map[string]interface{}) PaymentEvent {
	ev := PaymentEvent{
		Status: strings.ToLower(firstValue(payload, "status", "data.status", "event.status", "order_status")),
		Email:  strings.TrimSpace(firstValue(payload, "email", "customer.email", "buyer.email", "data.customer.email", "Customer.email")),
		Name:   strings.TrimSpace(firstValue(payload, "name", "customer.name", "buyer.name", "data.customer.name", "Customer.full_name")),
	}
	if ev.Name == "" {
		ev.Name = ev.Email
	}
	if id := firstValue(payload, "order_id", "data.order_id"); id != "" {
		ev.OrderID = &id
	}
	return ev
}

// firstValue returns the first non-empty scalar found at the dotted paths
func firstValue(payload map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if s := scalarAt(payload, strings.Split(path, ".")); s != "" {
			return s
		}
	}
	return ""
}

func scalarAt(node map[string]interface{}, keys []string) string {
	v, ok := node[keys[0]]
	if !ok {
		return ""
	}
	if len(keys) > 1 {
		child, ok := v.(map[string]interface{})
		if !ok {
			return ""
		}
		return scalarAt(child, keys[1:])
	}

	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
	}
	return ""
}

// PaymentService activates plans from payment webhook events.
// It never fails: every outcome is an acknowledgement, and problems go to the log.
type PaymentService struct {
	identities IdentityDirectory
	plans      PlanActivator
	logger     *logging.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(identities IdentityDirectory, plans PlanActivator, logger *logging.Logger) *PaymentService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PaymentService{
		identities: identities,
		plans:      plans,
		logger:     logger.WithField("component", "payment_webhook"),
	}
}

// Configured reports whether the identity directory and plan storage are present
func (s *PaymentService) Configured() bool {
	return s.identities != nil && s.plans != nil
}

// HandleEvent processes one raw webhook body
func (s *PaymentService) HandleEvent(ctx context.Context, body []byte) (ack WebhookAck) {
	defer func() {
		if r := recover(); r != nil {
			ack = s.absorb(NoteException, fmt.Errorf("panic: %v", r), nil, "payment webhook processing panicked")
		}
	}()

	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return s.absorb(NoteInvalidJSON, err, nil, "payment webhook received invalid JSON")
	}

	ev := NormalizePaymentEvent(payload)
	s.logger.WithFields(map[string]interface{}{
		"status": ev.Status,
		"email":  ev.Email,
	}).Info("payment webhook incoming")

	if !ev.Approved() {
		return WebhookAck{OK: true, Ignored: true}
	}
	if ev.Email == "" {
		return s.absorb(NoteMissingEmail, nil, nil, "approved payment without email")
	}

	userID, err := s.resolveUser(ctx, ev)
	if err != nil {
		return s.absorb(NoteUserNotResolved, err, map[string]interface{}{"email": ev.Email}, "could not resolve user for payment")
	}

	err = s.plans.ActivatePlan(ctx, storage.PlanActivation{
		UserID:   userID,
		Email:    ev.Email,
		Name:     ev.Name,
		Provider: paymentProvider,
		OrderID:  ev.OrderID,
	})
	if err != nil {
		return s.absorb(NotePersistenceFailed, err, map[string]interface{}{"user_id": userID}, "failed to activate plan")
	}

	s.logger.WithField("user_id", userID).Info("plan activated")
	return WebhookAck{OK: true}
}

// absorb logs a failed delivery as a webhook error and acknowledges it with note.
// Only malformed input is logged below error level.
func (s *PaymentService) absorb(note string, cause error, fields map[string]interface{}, message string) WebhookAck {
	werr := apperrors.NewWebhookError(note, cause)
	log := s.logger.WithFields(fields).WithFields(map[string]interface{}{
		"category": werr.Category,
		"code":     werr.Code,
		"note":     werr.Message,
	}).WithError(werr.Cause)

	switch note {
	case NoteInvalidJSON, NoteMissingEmail:
		log.Warn(message)
	default:
		log.Error(message)
	}
	return WebhookAck{OK: true, Note: werr.Message}
}

// resolveUser finds the identity by email, creating a confirmed one when absent.
// A create conflict means a concurrent delivery won the race, so the lookup is repeated.
func (s *PaymentService) resolveUser(ctx context.Context, ev PaymentEvent) (string, error) {
	user, err := s.identities.GetByEmail(ctx, ev.Email)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.WithError(err).Warn("identity lookup by email failed; trying create")
	}

	created := &models.AuthUser{
		Email:          ev.Email,
		Name:           ev.Name,
		EmailConfirmed: true,
	}
	err = s.identities.Create(ctx, created)
	if err == nil {
		return created.ID, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return "", fmt.Errorf("failed to create identity: %w", err)
	}

	user, err = s.identities.GetByEmail(ctx, ev.Email)
	if err != nil {
		return "", fmt.Errorf("identity lookup after conflict failed: %w", err)
	}
	return user.ID, nil
}
