package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/service"
)

// handleAcceptTerms records a terms acceptance. The checks run in a fixed order:
// method, server configuration, API key, content type, size, then the body itself.
func (s *Server) handleAcceptTerms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, r, apperrors.NewMethodNotAllowedError())
		return
	}

	if s.deps.Terms == nil || !s.deps.Terms.Configured() {
		respondError(w, r, apperrors.NewConfigurationError("terms storage or TERMS_SERVER_SECRET"))
		return
	}

	if !validAPIKey(s.config.TermsAPIKey, r.Header.Get("x-api-key")) {
		respondError(w, r, apperrors.NewUnauthorizedError("Unauthorized"))
		return
	}

	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		respondError(w, r, apperrors.NewUnsupportedMediaTypeError())
		return
	}

	body, err := readBody(r, s.config.TermsMaxBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	req, err := service.ParseAcceptTermsRequest(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.deps.Terms.Accept(r.Context(), req, clientInfo(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// validAPIKey compares in constant time; an unset expected key rejects everything
func validAPIKey(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// clientInfo takes the first X-Forwarded-For entry, falling back to CF-Connecting-IP
func clientInfo(r *http.Request) service.ClientInfo {
	var info service.ClientInfo

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("CF-Connecting-IP")
	}
	if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
		info.IP = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		info.UserAgent = &ua
	}

	return info
}
