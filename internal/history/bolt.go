package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var chatBucket = []byte("chat_history")

// BoltStore keeps chat history in a single bbolt file. Keys are the bucket
// sequence, so cursor order is insertion order.
type BoltStore struct {
	db       *bolt.DB
	capacity int
}

func NewBoltStore(path string, capacity int) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chatBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chat bucket: %w", err)
	}
	return &BoltStore{db: db, capacity: normalizeCapacity(capacity)}, nil
}

// Save appends and evicts the oldest entries past capacity in one transaction.
func (s *BoltStore) Save(_ context.Context, record ChatRecord) error {
	record = stamp(record)
	enc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chatBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), enc); err != nil {
			return fmt.Errorf("save chat: %w", err)
		}

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-s.capacity; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return fmt.Errorf("evict chat: %w", err)
			}
		}
		return nil
	})
}

func (s *BoltStore) List(_ context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	out := make([]ChatRecord, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(chatBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec ChatRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// Skip a malformed entry rather than failing the whole list.
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	return out, nil
}

func (s *BoltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(chatBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("clear chats: %w", err)
		}
		_, err := tx.CreateBucket(chatBucket)
		return err
	})
}

func (s *BoltStore) Mode() string { return "bolt" }

func (s *BoltStore) Close() error { return s.db.Close() }

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
