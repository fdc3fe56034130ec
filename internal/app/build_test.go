package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ent0n29/webmind/internal/config"
)

func TestBuildInMemory(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:         fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		SessionInactivityTimeout: time.Minute,
		GroqAPIURL:               "https://api.groq.com/openai/v1/chat/completions",
		GroqDefaultModel:         "llama3-70b-8192",
		HistoryCapacity:          20,
		PageContextMaxChars:      1500,
		SpeechSegmentMaxChars:    200,
	}
	built, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() {
		if err := built.Cleanup(); err != nil {
			t.Errorf("Cleanup() error = %v", err)
		}
	})

	if built.History.Mode() != "in-memory" || built.Settings.Mode() != "in-memory" {
		t.Fatalf("modes = %s/%s, want in-memory", built.History.Mode(), built.Settings.Mode())
	}
	if built.Assistant.VoiceEnabled() {
		t.Fatalf("voice should follow config")
	}

	ts := httptest.NewServer(built.API.Router())
	defer ts.Close()
	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", res.StatusCode)
	}
}

func TestBuildSharesSessionsWithAssistant(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:         fmt.Sprintf("test_app_expire_%d", time.Now().UnixNano()),
		SessionInactivityTimeout: time.Minute,
	}
	built, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer built.Cleanup()

	sess := built.Sessions.Create(false)
	if built.Assistant.InFlight(sess.ID) {
		t.Fatalf("new session should have no query in flight")
	}
	if built.Sessions.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", built.Sessions.ActiveCount())
	}
}

func TestBuildBoltStores(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:         fmt.Sprintf("test_app_bolt_%d", time.Now().UnixNano()),
		SessionInactivityTimeout: time.Minute,
		HistoryCapacity:          20,
		PageContextMaxChars:      1500,
		SpeechSegmentMaxChars:    200,
		BoltDir:                  t.TempDir(),
	}
	built, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer built.Cleanup()

	if built.History.Mode() != "bolt" || built.Settings.Mode() != "bolt" {
		t.Fatalf("modes = %s/%s, want bolt", built.History.Mode(), built.Settings.Mode())
	}
}
