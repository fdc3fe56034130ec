package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/ent0n29/webmind/internal/assistant"
	"github.com/ent0n29/webmind/internal/config"
	"github.com/ent0n29/webmind/internal/groq"
	"github.com/ent0n29/webmind/internal/history"
	"github.com/ent0n29/webmind/internal/httpapi"
	"github.com/ent0n29/webmind/internal/observability"
	"github.com/ent0n29/webmind/internal/session"
	"github.com/ent0n29/webmind/internal/settings"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Assistant *assistant.Service
	History   history.Store
	Settings  settings.Store
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to release the stores.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	historyStore, err := history.NewStore(ctx, history.Config{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		BoltPath:    boltPath(cfg.BoltDir, "history.bolt"),
		Capacity:    cfg.HistoryCapacity,
	})
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	settingsStore, err := settings.NewStore(ctx, settings.Config{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		BoltPath:    boltPath(cfg.BoltDir, "settings.bolt"),
	})
	if err != nil {
		_ = historyStore.Close()
		return nil, fmt.Errorf("settings store init failed: %w", err)
	}
	log.Printf("stores: history=%s settings=%s", historyStore.Mode(), settingsStore.Mode())

	completer := groq.NewClient(groq.Config{
		URL:         cfg.GroqAPIURL,
		Timeout:     cfg.GroqTimeout,
		Temperature: cfg.GroqTemperature,
		MaxTokens:   cfg.GroqMaxTokens,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)

	svc := assistant.NewService(assistant.Config{
		FallbackAPIKey:        cfg.GroqAPIKey,
		DefaultModel:          cfg.GroqDefaultModel,
		VoiceEnabled:          cfg.VoiceEnabled,
		SpeechSegmentMaxChars: cfg.SpeechSegmentMaxChars,
		SpeechAckTimeout:      cfg.SpeechAckTimeout,
		MaxRetries:            cfg.GroqMaxRetries,
		RetryBackoff:          cfg.GroqRetryBackoff,
		RedactHistory:         cfg.HistoryRedactPII,
	}, completer, sessions, historyStore, settingsStore, metrics)

	sessions.SetExpireHook(func(s *session.Session) {
		svc.CancelQuery(s.ID)
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, svc, historyStore, settingsStore, metrics)

	cleanup := func() error {
		var errs []string
		if err := settingsStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := historyStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Assistant: svc,
		History:   historyStore,
		Settings:  settingsStore,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}

// boltPath gives each store its own file since bolt holds an exclusive lock.
func boltPath(dir, name string) string {
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, name)
}
