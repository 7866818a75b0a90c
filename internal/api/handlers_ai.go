package api

import (
	"net/http"

	"github.com/clicloop/internal/auth"
	"github.com/clicloop/internal/service"
)

// handleGenerate runs after authentication and the quota check
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	body, err := readBody(r, maxGenerationBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	req, err := service.ParseGenerationRequest(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.deps.Generation.Generate(r.Context(), userID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
