package store

import (
	"context"
	"errors"
	"time"

	"mining-reward-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertMinerDirectory inserts or refreshes mirrored profile rows.
func (s *GormStore) UpsertMinerDirectory(ctx context.Context, entries []models.MinerDirectoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "level", "is_premium", "created_at", "updated_at"}),
	}).Create(&entries).Error
}

// LastMinerSync returns the newest updated_at in the directory, or the zero time.
func (s *GormStore) LastMinerSync(ctx context.Context) (time.Time, error) {
	var entry models.MinerDirectoryEntry
	err := s.DB.WithContext(ctx).Order("updated_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return entry.UpdatedAt, nil
}

// LastSessionSync returns the newest feed change time among ingested
// sessions, or the zero time.
func (s *GormStore) LastSessionSync(ctx context.Context) (time.Time, error) {
	var session models.MiningSession
	err := s.DB.WithContext(ctx).Order("feed_updated_at DESC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return session.FeedUpdatedAt, nil
}
