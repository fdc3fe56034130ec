package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/webmind/internal/assistant"
	"github.com/ent0n29/webmind/internal/pagecontext"
)

type queryRequest struct {
	Query     string `json:"query"`
	FromVoice bool   `json:"from_voice"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "assistant not configured")
		return
	}
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ans, err := s.assistant.Query(r.Context(), chi.URLParam(r, "id"), req.Query, req.FromVoice)
	if err != nil {
		var qerr *assistant.QueryError
		if errors.As(err, &qerr) {
			respondError(w, qerr.Kind.HTTPStatus(), string(qerr.Kind), qerr.Message)
			return
		}
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ans)
}

type contextRequest struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	HTML    string `json:"html"`
}

type contextResponse struct {
	SessionID      string                  `json:"session_id"`
	PageContext    pagecontext.PageContext `json:"page_context"`
	SuggestedQuery string                  `json:"suggested_query"`
}

// handleSetContext attaches page context from extracted text or a raw document.
func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var pc pagecontext.PageContext
	if strings.TrimSpace(req.HTML) != "" {
		extracted, err := pagecontext.ExtractString(req.HTML, req.URL, s.cfg.PageContextMaxChars)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_html", err.Error())
			return
		}
		pc = extracted
		if strings.TrimSpace(req.Title) != "" {
			pc.Title = pagecontext.CollapseWhitespace(req.Title)
		}
	} else {
		pc = pagecontext.New(pagecontext.CollapseWhitespace(req.Title), pagecontext.CollapseWhitespace(req.Content), req.URL, s.cfg.PageContextMaxChars)
	}
	if pc.Content == "" {
		respondError(w, http.StatusUnprocessableEntity, "empty_page_context", "no readable content found on the page")
		return
	}

	sess, err := s.sessions.SetPageContext(chi.URLParam(r, "id"), pc)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.metrics.SessionEvents.WithLabelValues("context_attached").Inc()
	respondJSON(w, http.StatusOK, contextResponse{
		SessionID:      sess.ID,
		PageContext:    *sess.PageContext,
		SuggestedQuery: pagecontext.SuggestedQuery,
	})
}

func (s *Server) handleClearContext(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ClearPageContext(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type modeRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess, err := s.sessions.SetConversationMode(chi.URLParam(r, "id"), req.Enabled)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.assistant != nil {
		s.assistant.CancelQuery(id)
	}
	sess, err := s.sessions.Clear(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.metrics.SessionEvents.WithLabelValues("cleared").Inc()
	respondJSON(w, http.StatusOK, sess)
}

type explainRequest struct {
	Selection string `json:"selection"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	prefill, err := assistant.ExplainPrefill(req.Selection)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "selection is required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"prefill": prefill})
}
