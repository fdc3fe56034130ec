package history

import (
	"context"
	"strings"
)

// Config selects and sizes the history backend.
type Config struct {
	DatabaseURL string
	SQLitePath  string
	BoltPath    string
	Capacity    int
}

// NewStore picks the first configured backend: postgres, sqlite, bolt, then
// in-memory.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		return NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Capacity)
	case strings.TrimSpace(cfg.SQLitePath) != "":
		return NewSQLiteStore(cfg.SQLitePath, cfg.Capacity)
	case strings.TrimSpace(cfg.BoltPath) != "":
		return NewBoltStore(cfg.BoltPath, cfg.Capacity)
	default:
		return NewInMemoryStore(cfg.Capacity), nil
	}
}
