package history

import (
	"context"
	"sort"
	"time"
)

// DefaultCapacity is the number of chats kept; older ones are evicted first.
const DefaultCapacity = 20

// ChatRecord is one completed query/answer exchange.
type ChatRecord struct {
	ID             string `json:"id"`
	Query          string `json:"query"`
	Answer         string `json:"answer"`
	Timestamp      int64  `json:"timestamp"`
	HasPageContext bool   `json:"hasPageContext"`
}

// NewRecord stamps a record with the current time in epoch milliseconds.
func NewRecord(chatID, query, answer string, hasPageContext bool) ChatRecord {
	return ChatRecord{
		ID:             chatID,
		Query:          query,
		Answer:         answer,
		Timestamp:      time.Now().UnixMilli(),
		HasPageContext: hasPageContext,
	}
}

// Store persists the bounded chat list, newest first by insertion order.
type Store interface {
	Save(ctx context.Context, record ChatRecord) error
	List(ctx context.Context, limit int) ([]ChatRecord, error)
	Clear(ctx context.Context) error
	Mode() string
	Close() error
}

// MostRecent returns up to n records ordered by timestamp, newest first.
func MostRecent(records []ChatRecord, n int) []ChatRecord {
	out := make([]ChatRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func normalizeCapacity(capacity int) int {
	if capacity <= 0 {
		return DefaultCapacity
	}
	return capacity
}

func stamp(record ChatRecord) ChatRecord {
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	return record
}
