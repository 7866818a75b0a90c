package api

import (
	"io"
	"net/http"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/service"
)

// handlePaymentWebhook acknowledges every delivery with 200 so the provider does not
// retry; outcomes other than success are reported in the note and the log.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, r, apperrors.NewMethodNotAllowedError())
		return
	}

	if s.deps.Payments == nil || !s.deps.Payments.Configured() {
		logging.FromContext(r.Context()).Error("payment webhook: missing server credentials")
		respondJSON(w, http.StatusInternalServerError, service.WebhookAck{OK: false})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("payment webhook: could not read body")
		respondJSON(w, http.StatusOK, service.WebhookAck{OK: true, Note: service.NoteInvalidJSON})
		return
	}

	respondJSON(w, http.StatusOK, s.deps.Payments.HandleEvent(r.Context(), body))
}
