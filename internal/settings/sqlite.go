package settings

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type settingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"type:text;not null"`
}

func (settingRow) TableName() string { return "panel_settings" }

type sqliteBackend struct {
	db *gorm.DB
}

func newSQLiteBackend(path string) (*sqliteBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := migrateOrClose(db, &settingRow{}); err != nil {
		return nil, fmt.Errorf("migrate panel_settings: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) load(ctx context.Context) (map[string]string, error) {
	var rows []settingRow
	if err := b.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (b *sqliteBackend) put(ctx context.Context, values map[string]string) error {
	rows := make([]settingRow, 0, len(values))
	for k, v := range values {
		rows = append(rows, settingRow{Key: k, Value: v})
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

func (b *sqliteBackend) mode() string { return "sqlite" }

func (b *sqliteBackend) close() error {
	sqlDB, err := b.db.DB()
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
