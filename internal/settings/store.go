package settings

import (
	"context"
	"strings"
	"sync"
)

// Store reads and partially updates the persisted settings.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, u Update) (Settings, error)
	Mode() string
	Close() error
}

// backend is the raw key/value layer a KVStore sits on.
type backend interface {
	load(ctx context.Context) (map[string]string, error)
	put(ctx context.Context, values map[string]string) error
	mode() string
	close() error
}

// KVStore applies defaults and validation over a key/value backend.
type KVStore struct {
	mu sync.Mutex
	kv backend
}

func (s *KVStore) Get(ctx context.Context) (Settings, error) {
	values, err := s.kv.load(ctx)
	if err != nil {
		return Settings{}, err
	}
	return fromValues(values), nil
}

func (s *KVStore) Update(ctx context.Context, u Update) (Settings, error) {
	if err := u.Validate(); err != nil {
		return Settings{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if values := u.values(); len(values) > 0 {
		if err := s.kv.put(ctx, values); err != nil {
			return Settings{}, err
		}
	}
	return s.Get(ctx)
}

func (s *KVStore) Mode() string { return s.kv.mode() }

func (s *KVStore) Close() error { return s.kv.close() }

// Config selects the settings backend.
type Config struct {
	DatabaseURL string
	SQLitePath  string
	BoltPath    string
}

// NewStore mirrors history.NewStore: postgres, sqlite, bolt, then memory.
func NewStore(ctx context.Context, cfg Config) (*KVStore, error) {
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		kv, err := newPostgresBackend(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &KVStore{kv: kv}, nil
	case strings.TrimSpace(cfg.SQLitePath) != "":
		kv, err := newSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &KVStore{kv: kv}, nil
	case strings.TrimSpace(cfg.BoltPath) != "":
		kv, err := newBoltBackend(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return &KVStore{kv: kv}, nil
	default:
		return NewInMemoryStore(), nil
	}
}

func NewInMemoryStore() *KVStore {
	return &KVStore{kv: &memoryBackend{values: make(map[string]string)}}
}

type memoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

func (b *memoryBackend) load(_ context.Context) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out, nil
}

func (b *memoryBackend) put(_ context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range values {
		b.values[k] = v
	}
	return nil
}

func (b *memoryBackend) mode() string { return "in-memory" }

func (b *memoryBackend) close() error { return nil }
