package httpapi

import (
	"net/http"
	"strconv"

	"github.com/ent0n29/webmind/internal/history"
)

const recentChats = 5

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []history.ChatRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": records, "store": s.history.Mode()})
}

func (s *Server) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context(), 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": history.MostRecent(records, recentChats)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
