package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"openbooks/pkg/domain"
)

// GormStore implements the partitioned backend on a single Postgres table
// keyed by (type, id).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: database URL is required", ErrConfig)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&DocumentModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// LoadAll synthesizes the aggregate from per-type queries.
func (s *GormStore) LoadAll(ctx context.Context) (domain.Aggregate, bool, error) {
	return loadPartitioned(ctx, s)
}

// SaveAll upserts row by row outside any transaction.
func (s *GormStore) SaveAll(ctx context.Context, agg domain.Aggregate) error {
	return savePartitioned(ctx, s, agg)
}

// Upsert inserts or replaces one document.
func (s *GormStore) Upsert(ctx context.Context, item Item) error {
	model := documentToModel(item, time.Now().UTC())
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return fmt.Errorf("gorm upsert: %w", err)
	}
	return nil
}

// Delete removes one document.
func (s *GormStore) Delete(ctx context.Context, itemType, id string) error {
	if err := s.db.WithContext(ctx).
		Delete(&DocumentModel{}, "type = ? AND id = ?", itemType, id).Error; err != nil {
		return fmt.Errorf("gorm delete: %w", err)
	}
	return nil
}

// QueryByType returns every document of one partition ordered by id.
func (s *GormStore) QueryByType(ctx context.Context, itemType string) ([]Item, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).
		Where("type = ?", itemType).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm query: %w", err)
	}
	items := make([]Item, 0, len(models))
	for _, m := range models {
		items = append(items, documentFromModel(m))
	}
	return items, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
