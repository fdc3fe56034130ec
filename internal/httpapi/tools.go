package httpapi

import (
	"net/http"
	"time"

	"github.com/ent0n29/webmind/internal/observability"
	"github.com/ent0n29/webmind/internal/pagecontext"
	"github.com/ent0n29/webmind/internal/render"
	"github.com/ent0n29/webmind/internal/voice"
)

type renderRequest struct {
	Markdown string `json:"markdown"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	started := time.Now()
	html := render.Markdown(req.Markdown)
	s.metrics.ObserveStage(observability.StageRender, time.Since(started))
	respondJSON(w, http.StatusOK, map[string]string{"html": html})
}

type speechRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSpeechSegments(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.VoiceEnabled {
		respondError(w, http.StatusNotImplemented, "voice_unsupported", "Voice features are not available.")
		return
	}
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	segments := voice.Segments(voice.CleanForSpeech(req.Text), s.cfg.SpeechSegmentMaxChars)
	if segments == nil {
		segments = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

type extractRequest struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

func (s *Server) handleExtractPage(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	pc, err := pagecontext.ExtractString(req.HTML, req.URL, s.cfg.PageContextMaxChars)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_html", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pc)
}
