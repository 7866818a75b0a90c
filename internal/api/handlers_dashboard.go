package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clicloop/internal/auth"
	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/models"
	"github.com/gorilla/mux"
)

// History kinds as they appear in the URL
const (
	historyContent   = "content"
	historyPrompts   = "prompts"
	historyCampaigns = "campaigns"
	historyChat      = "chat"
)

// EnsureProfileRequest is the optional body of POST /api/profile
type EnsureProfileRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Accounts.GetProfile(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleEnsureProfile creates the profile at signup. Token claims win over the body.
func (s *Server) handleEnsureProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req EnsureProfileRequest
	body, err := readBody(r, maxDashboardBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, r, apperrors.NewInvalidInputError("Invalid JSON body", err))
			return
		}
	}

	email, name := user.Email, user.Name
	if email == "" {
		email = req.Email
	}
	if name == "" {
		name = req.Name
	}

	p, err := s.deps.Accounts.EnsureProfile(r.Context(), user.ID, email, name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd models.ProfileUpdate
	if err := parseJSONBody(w, r, maxDashboardBodyBytes, &upd); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.deps.Accounts.UpdateProfile(r.Context(), auth.UserIDFromContext(r.Context()), upd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	var answers models.OnboardingAnswers
	if err := parseJSONBody(w, r, maxDashboardBodyBytes, &answers); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.deps.Accounts.CompleteOnboarding(r.Context(), auth.UserIDFromContext(r.Context()), answers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleSaveHistory appends a history row. The owner is always the caller; id and
// timestamps in the body are ignored.
func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)

	var (
		row  interface{}
		save func() error
	)

	switch kind := mux.Vars(r)["kind"]; kind {
	case historyContent:
		h := &models.ContentHistory{}
		row, save = h, func() error { h.ID = ""; return s.deps.Accounts.SaveContent(ctx, userID, h) }
	case historyPrompts:
		h := &models.PromptHistory{}
		row, save = h, func() error { h.ID = ""; return s.deps.Accounts.SavePrompt(ctx, userID, h) }
	case historyCampaigns:
		h := &models.CampaignAnalysis{}
		row, save = h, func() error { h.ID = ""; return s.deps.Accounts.SaveCampaign(ctx, userID, h) }
	case historyChat:
		h := &models.ChatHistory{}
		row, save = h, func() error { h.ID = ""; return s.deps.Accounts.SaveChat(ctx, userID, h) }
	default:
		respondError(w, r, apperrors.NewNotFoundError("history", kind))
		return
	}

	if err := parseJSONBody(w, r, maxDashboardBodyBytes, row); err != nil {
		respondError(w, r, err)
		return
	}
	if err := save(); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, row)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)
	limit := queryLimit(r)

	var (
		rows interface{}
		err  error
	)

	switch kind := mux.Vars(r)["kind"]; kind {
	case historyContent:
		rows, err = s.deps.Accounts.ListContent(ctx, userID, limit)
	case historyPrompts:
		rows, err = s.deps.Accounts.ListPrompts(ctx, userID, limit)
	case historyCampaigns:
		rows, err = s.deps.Accounts.ListCampaigns(ctx, userID, limit)
	case historyChat:
		rows, err = s.deps.Accounts.ListChats(ctx, userID, limit)
	default:
		respondError(w, r, apperrors.NewNotFoundError("history", kind))
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": rows})
}

// queryLimit parses ?limit; invalid values fall back to the service default
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Accounts.Billing(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}
