package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	Model         string            `json:"model"`
	HasAPIKey     bool              `json:"has_api_key"`
	VoiceEnabled  bool              `json:"voice_enabled"`
	HistoryStore  string            `json:"history_store"`
	SettingsStore string            `json:"settings_store"`
	Checks        []onboardingCheck `json:"checks"`
}

// handleOnboardingStatus reports what the panel needs before its first query.
// ?probe=1 also dials the completion endpoint.
func (s *Server) handleOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Get(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "settings_unavailable", err.Error())
		return
	}
	pub := s.publicSettings(current)

	checks := make([]onboardingCheck, 0, 8)
	if pub.HasAPIKey {
		detail := "stored in settings"
		if strings.TrimSpace(current.APIKey) == "" {
			detail = "from GROQ_API_KEY"
		}
		checks = append(checks, onboardingCheck{
			ID:     "groq_api_key",
			Status: "ok",
			Label:  "Groq API key",
			Detail: detail,
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "groq_api_key",
			Status: "error",
			Label:  "Groq API key",
			Detail: "no key configured",
			Fix:    "Set your Groq API key in the extension popup or export GROQ_API_KEY.",
		})
	}

	checks = append(checks, s.endpointCheck(r.URL.Query().Get("probe") == "1"))
	checks = append(checks, storeCheck("history_store", "Chat history", storeMode(s.history)))
	checks = append(checks, storeCheck("settings_store", "Settings", storeMode(s.settings)))

	if s.cfg.VoiceEnabled {
		checks = append(checks, onboardingCheck{
			ID:     "voice",
			Status: "ok",
			Label:  "Voice",
			Detail: fmt.Sprintf("enabled (segments under %d chars)", s.cfg.SpeechSegmentMaxChars),
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "voice",
			Status: "warn",
			Label:  "Voice",
			Detail: "disabled",
			Fix:    "Set VOICE_ENABLED=true to accept voice queries.",
		})
	}

	switch {
	case s.cfg.AllowAnyOrigin:
		checks = append(checks, onboardingCheck{
			ID:     "origins",
			Status: "warn",
			Label:  "Allowed origins",
			Detail: "any origin may call this service",
			Fix:    "Unset APP_ALLOW_ANY_ORIGIN and list the extension in APP_ALLOWED_ORIGINS.",
		})
	case len(s.cfg.AllowedOrigins) == 0:
		checks = append(checks, onboardingCheck{
			ID:     "origins",
			Status: "warn",
			Label:  "Allowed origins",
			Detail: "only same-host pages are allowed",
			Fix:    "Add the extension origin (chrome-extension://<id>) to APP_ALLOWED_ORIGINS.",
		})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "origins",
			Status: "ok",
			Label:  "Allowed origins",
			Detail: strings.Join(s.cfg.AllowedOrigins, ", "),
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		Model:         pub.Model,
		HasAPIKey:     pub.HasAPIKey,
		VoiceEnabled:  s.cfg.VoiceEnabled,
		HistoryStore:  storeMode(s.history),
		SettingsStore: storeMode(s.settings),
		Checks:        checks,
	})
}

func (s *Server) endpointCheck(probe bool) onboardingCheck {
	raw := strings.TrimSpace(s.cfg.GroqAPIURL)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Host == "" {
		return onboardingCheck{
			ID:     "groq_endpoint",
			Status: "error",
			Label:  "Completion endpoint",
			Detail: "GROQ_API_URL is not a valid URL",
		}
	}
	if u.Scheme != "https" {
		return onboardingCheck{
			ID:     "groq_endpoint",
			Status: "warn",
			Label:  "Completion endpoint",
			Detail: fmt.Sprintf("%s does not use https", u.Host),
		}
	}
	if !probe {
		return onboardingCheck{ID: "groq_endpoint", Status: "ok", Label: "Completion endpoint", Detail: u.Host}
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "443")
	}
	c, err := net.DialTimeout("tcp", addr, 750*time.Millisecond)
	if err != nil {
		return onboardingCheck{
			ID:     "groq_endpoint",
			Status: "error",
			Label:  "Completion endpoint",
			Detail: fmt.Sprintf("%s not reachable", u.Host),
			Fix:    "Check the network connection or GROQ_API_URL.",
		}
	}
	_ = c.Close()
	return onboardingCheck{ID: "groq_endpoint", Status: "ok", Label: "Completion endpoint", Detail: u.Host + " reachable"}
}

func storeCheck(id, label, mode string) onboardingCheck {
	if mode == "in-memory" {
		return onboardingCheck{
			ID:     id,
			Status: "warn",
			Label:  label,
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL, SQLITE_PATH or BOLT_DIR to keep data across restarts.",
		}
	}
	return onboardingCheck{ID: id, Status: "ok", Label: label, Detail: mode}
}
