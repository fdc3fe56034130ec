package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestInMemoryStoreAppliesDefaults(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != Defaults() {
		t.Fatalf("Get() = %+v, want defaults %+v", got, Defaults())
	}
	if got.SystemPrompt() != DefaultSystemPrompt {
		t.Fatalf("SystemPrompt() = %q", got.SystemPrompt())
	}
}

func TestUpdateIsPartial(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	got, err := s.Update(ctx, Update{APIKey: strPtr(" gsk-1 "), Transparency: strPtr("0.5")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.APIKey != "gsk-1" || got.Transparency != "0.5" {
		t.Fatalf("Update() = %+v", got)
	}
	if got.Model != Defaults().Model || got.Theme != "auto" {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	got, err = s.Update(ctx, Update{Model: strPtr("mixtral-8x7b-32768")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.APIKey != "gsk-1" || got.Model != "mixtral-8x7b-32768" {
		t.Fatalf("second Update() = %+v", got)
	}
}

func TestUpdateValidation(t *testing.T) {
	cases := []struct {
		name string
		u    Update
	}{
		{name: "bad transparency", u: Update{Transparency: strPtr("cloudy")}},
		{name: "transparency out of range", u: Update{Transparency: strPtr("1.5")}},
		{name: "bad theme", u: Update{Theme: strPtr("neon")}},
		{name: "empty model", u: Update{Model: strPtr(" ")}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewInMemoryStore().Update(context.Background(), tc.u); err == nil {
				t.Fatalf("Update() expected validation error")
			}
		})
	}
}

func TestPublicHidesAPIKey(t *testing.T) {
	s := Defaults()
	if s.Public().HasAPIKey {
		t.Fatalf("HasAPIKey = true for empty key")
	}
	s.APIKey = "gsk-secret"
	pub := s.Public()
	if !pub.HasAPIKey {
		t.Fatalf("HasAPIKey = false, want true")
	}
}

func TestBlankCustomPromptFallsBack(t *testing.T) {
	s := Defaults()
	s.CustomPrompt = "  "
	if s.SystemPrompt() != DefaultSystemPrompt {
		t.Fatalf("SystemPrompt() = %q, want default", s.SystemPrompt())
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	if os.Getenv("CGO_ENABLED") == "0" {
		t.Skip("sqlite driver requires cgo")
	}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.sqlite")

	s, err := NewStore(ctx, Config{SQLitePath: path})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := s.Update(ctx, Update{Theme: strPtr("dark")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := s.Update(ctx, Update{Theme: strPtr("light"), APIKey: strPtr("k")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	_ = s.Close()

	reopened, err := NewStore(ctx, Config{SQLitePath: path})
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Theme != "light" || got.APIKey != "k" || got.CustomPrompt != DefaultSystemPrompt {
		t.Fatalf("Get() after reopen = %+v", got)
	}
	if reopened.Mode() != "sqlite" {
		t.Fatalf("Mode() = %q", reopened.Mode())
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.bolt")

	s, err := NewStore(ctx, Config{BoltPath: path})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := s.Update(ctx, Update{Theme: strPtr("light"), APIKey: strPtr("gsk-bolt")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewStore(ctx, Config{BoltPath: path})
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Theme != "light" || got.APIKey != "gsk-bolt" || got.CustomPrompt != DefaultSystemPrompt {
		t.Fatalf("Get() after reopen = %+v", got)
	}
	if reopened.Mode() != "bolt" {
		t.Fatalf("Mode() = %q", reopened.Mode())
	}
}
