package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("panel_settings")

type boltBackend struct {
	db *bolt.DB
}

func newBoltBackend(path string) (*boltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create settings bucket: %w", err)
	}
	return &boltBackend{db: db}, nil
}

func (b *boltBackend) load(_ context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	return out, nil
}

func (b *boltBackend) put(_ context.Context, values map[string]string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(settingsBucket)
		for k, v := range values {
			if err := bucket.Put([]byte(k), []byte(v)); err != nil {
				return fmt.Errorf("upsert settings: %w", err)
			}
		}
		return nil
	})
}

func (b *boltBackend) mode() string { return "bolt" }

func (b *boltBackend) close() error { return b.db.Close() }
