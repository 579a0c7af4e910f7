package store

import (
	"context"
	"time"

	"mining-reward-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetProfile returns the user's mining profile.
func (s *GormStore) GetProfile(ctx context.Context, userID string) (*models.MiningProfile, error) {
	var profile models.MiningProfile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

// ApplyMiningSession records a completed session exactly once. Inside one
// transaction it inserts the session row, lets apply mutate the locked
// profile, saves it and bumps today's activity in every group the user
// belongs to. A session id seen before is skipped and reported with
// applied=false.
func (s *GormStore) ApplyMiningSession(
	ctx context.Context,
	session models.MiningSession,
	apply func(profile *models.MiningProfile) error,
) (profile *models.MiningProfile, applied bool, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&session)
		if res.Error != nil {
			return res.Error
		}

		locked, err := lockProfile(tx, session.UserID)
		if err != nil {
			return err
		}
		profile = locked
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		if err := apply(profile); err != nil {
			return err
		}
		if err := saveProfileState(tx, profile); err != nil {
			return err
		}

		var groupIDs []string
		if err := tx.Model(&models.GroupMember{}).
			Where("user_id = ?", session.UserID).
			Pluck("group_id", &groupIDs).Error; err != nil {
			return err
		}
		date := models.ActivityDate(session.MinedAt)
		for _, groupID := range groupIDs {
			if _, err := upsertActivity(tx, groupID, session.UserID, date, func(current int) int {
				return current + 1
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return profile, applied, nil
}

// UpdateProfileBurnState locks the user's profile, lets mutate change the
// burn/recovery fields and saves the result. mutate returning false leaves
// the row untouched.
func (s *GormStore) UpdateProfileBurnState(
	ctx context.Context,
	userID string,
	mutate func(profile *models.MiningProfile) (bool, error),
) (*models.MiningProfile, bool, error) {
	var (
		profile *models.MiningProfile
		changed bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.MiningProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&p).Error; err != nil {
			return translate(err)
		}
		profile = &p

		ok, err := mutate(profile)
		if err != nil || !ok {
			return err
		}
		changed = true
		return saveProfileState(tx, profile)
	})
	if err != nil {
		return nil, false, err
	}
	return profile, changed, nil
}

// ListBurnCandidates returns profiles idle since cutoff that still hold a
// balance and have not been burned for the current idle window.
func (s *GormStore) ListBurnCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.MiningProfile, error) {
	var profiles []models.MiningProfile
	err := s.DB.WithContext(ctx).
		Where("last_mining_at IS NOT NULL AND last_mining_at <= ?", cutoff).
		Where("last_burn_at IS NULL OR last_burn_at < last_mining_at").
		Where("balance > 0").
		Order("last_mining_at ASC").
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

func saveProfileState(tx *gorm.DB, profile *models.MiningProfile) error {
	return tx.Model(profile).Select(
		"balance", "total_mined", "burned_amount", "total_burned", "total_recovered",
		"recovery_streak", "last_mining_at", "last_burn_at",
	).Updates(profile).Error
}
