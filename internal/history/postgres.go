package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chat history in PostgreSQL.
type PostgresStore struct {
	pool     *pgxpool.Pool
	capacity int
}

func NewPostgresStore(ctx context.Context, databaseURL string, capacity int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, capacity: normalizeCapacity(capacity)}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_history (
			seq BIGSERIAL PRIMARY KEY,
			chat_id TEXT NOT NULL,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			has_page_context BOOLEAN NOT NULL DEFAULT FALSE
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Save inserts and evicts past capacity in one transaction.
func (s *PostgresStore) Save(ctx context.Context, record ChatRecord) error {
	record = stamp(record)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_history (chat_id, query, answer, timestamp_ms, has_page_context)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID,
		record.Query,
		record.Answer,
		record.Timestamp,
		record.HasPageContext,
	); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM chat_history WHERE seq NOT IN (
			SELECT seq FROM chat_history ORDER BY seq DESC LIMIT $1
		)`,
		s.capacity,
	); err != nil {
		return fmt.Errorf("evict chats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}

	rows, err := s.pool.Query(ctx,
		`SELECT chat_id, query, answer, timestamp_ms, has_page_context
		 FROM chat_history ORDER BY seq DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	items := make([]ChatRecord, 0, limit)
	for rows.Next() {
		var r ChatRecord
		if err := rows.Scan(&r.ID, &r.Query, &r.Answer, &r.Timestamp, &r.HasPageContext); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_history`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
