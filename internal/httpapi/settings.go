package httpapi

import (
	"net/http"

	"github.com/ent0n29/webmind/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Get(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "settings_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.publicSettings(current))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Update
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}
	updated, err := s.settings.Update(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "settings_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.publicSettings(updated))
}

// publicSettings counts a key configured in the environment as present.
func (s *Server) publicSettings(current settings.Settings) settings.Public {
	pub := current.Public()
	if !pub.HasAPIKey && s.cfg.GroqAPIKey != "" {
		pub.HasAPIKey = true
	}
	return pub
}
