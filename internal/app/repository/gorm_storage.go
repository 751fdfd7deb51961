package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/ikkim/storefront-cart/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStorage stores guest carts in the local_storage_entries table.
type GormStorage struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db, now: time.Now}
}

func (s *GormStorage) Get(ctx context.Context, key string) (string, error) {
	var entry model.LocalStorageEntry
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrEntryNotFound
	}
	if err != nil {
		logger.Error("Failed to find storage entry in database", err, map[string]interface{}{
			"key": key,
		})
		return "", err
	}

	if entry.Expired(s.now()) {
		logger.Debug("Storage entry expired", map[string]interface{}{
			"key":        key,
			"expires_at": entry.ExpiresAt,
		})
		_ = s.Delete(ctx, key)
		return "", ErrEntryNotFound
	}
	return entry.Value, nil
}

func (s *GormStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := model.LocalStorageEntry{Key: key, Value: value}
	if ttl > 0 {
		expiresAt := s.now().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		logger.Error("Failed to upsert storage entry in database", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}

func (s *GormStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&model.LocalStorageEntry{}).Error; err != nil {
		logger.Error("Failed to delete storage entry from database", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}

// PurgeExpired removes every expired entry and returns how many were deleted.
func (s *GormStorage) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&model.LocalStorageEntry{})
	if result.Error != nil {
		logger.Error("Failed to purge expired storage entries", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
