package history

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// chatRow is the sqlite table layout. Seq orders rows by insertion.
type chatRow struct {
	Seq            uint   `gorm:"primaryKey;autoIncrement"`
	ChatID         string `gorm:"index;not null"`
	Query          string `gorm:"type:text;not null"`
	Answer         string `gorm:"type:text;not null"`
	TimestampMS    int64  `gorm:"not null"`
	HasPageContext bool   `gorm:"not null;default:false"`
}

func (chatRow) TableName() string { return "chat_history" }

// SQLiteStore persists chat history in a local sqlite file.
type SQLiteStore struct {
	db       *gorm.DB
	path     string
	capacity int
}

func NewSQLiteStore(path string, capacity int) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := migrateOrClose(db, &chatRow{}); err != nil {
		return nil, fmt.Errorf("migrate chat_history: %w", err)
	}
	return &SQLiteStore{db: db, path: path, capacity: normalizeCapacity(capacity)}, nil
}

// Save inserts and evicts past capacity in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, record ChatRecord) error {
	record = stamp(record)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := chatRow{
			ChatID:         record.ID,
			Query:          record.Query,
			Answer:         record.Answer,
			TimestampMS:    record.Timestamp,
			HasPageContext: record.HasPageContext,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("save chat: %w", err)
		}

		var keep []uint
		if err := tx.Model(&chatRow{}).Order("seq DESC").Limit(s.capacity).Pluck("seq", &keep).Error; err != nil {
			return fmt.Errorf("select kept chats: %w", err)
		}
		if err := tx.Where("seq NOT IN ?", keep).Delete(&chatRow{}).Error; err != nil {
			return fmt.Errorf("evict chats: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	var rows []chatRow
	if err := s.db.WithContext(ctx).Order("seq DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	out := make([]ChatRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ChatRecord{
			ID:             r.ChatID,
			Query:          r.Query,
			Answer:         r.Answer,
			Timestamp:      r.TimestampMS,
			HasPageContext: r.HasPageContext,
		})
	}
	return out, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&chatRow{}).Error; err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// migrateOrClose releases the connection pool when the schema cannot be applied.
func migrateOrClose(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	return nil
}
