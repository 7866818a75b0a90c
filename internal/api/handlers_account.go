package api

import (
	"fmt"
	"net/http"

	"github.com/clicloop/internal/auth"
	"github.com/clicloop/internal/service"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.deps.Accounts.Export(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, service.ExportFilename(export.ExportedAt)))
	respondJSON(w, http.StatusOK, export)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Accounts.DeleteAccount(r.Context(), auth.UserIDFromContext(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleURLs returns the application links for the deployment serving this host
func (s *Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	respondJSON(w, http.StatusOK, s.config.Environments.URLsForHost(host))
}
