package store

import (
	"context"
	"time"

	"mining-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *GormStore) CreateBonusTask(ctx context.Context, task *models.BonusTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Create(task).Error
}

// GetBonusTasks returns every task issued to the user, soonest expiry first.
func (s *GormStore) GetBonusTasks(ctx context.Context, userID string) ([]models.BonusTask, error) {
	var tasks []models.BonusTask
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("expires_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (s *GormStore) GetBonusTask(ctx context.Context, taskID string) (*models.BonusTask, error) {
	var task models.BonusTask
	if err := s.DB.WithContext(ctx).Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

// UpdateBonusTaskState moves an open task to completed. Only a task that is
// neither completed nor claimed and has not expired at now is written, and the
// claim columns are never touched. changed reports whether this call did the
// transition; the returned row is current either way.
func (s *GormStore) UpdateBonusTaskState(ctx context.Context, userID, taskID string, now time.Time) (*models.BonusTask, bool, error) {
	var task models.BonusTask
	var changed bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BonusTask{}).
			Where("id = ? AND user_id = ?", taskID, userID).
			Where("is_completed = ? AND is_claimed = ? AND expires_at >= ?", false, false, now).
			Updates(map[string]interface{}{
				"is_completed": true,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0

		if err := tx.Where("id = ? AND user_id = ?", taskID, userID).First(&task).Error; err != nil {
			return translate(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &task, changed, nil
}

// ClaimBonusTask flips a completed, unexpired, unclaimed task to claimed and
// credits its reward in the same transaction. Any other state yields
// ErrTaskNotClaimable and changes nothing.
func (s *GormStore) ClaimBonusTask(ctx context.Context, userID, taskID string, now time.Time) (*models.BonusTask, error) {
	var task models.BonusTask
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BonusTask{}).
			Where("id = ? AND user_id = ?", taskID, userID).
			Where("is_completed = ? AND is_claimed = ? AND expires_at >= ?", true, false, now).
			Updates(map[string]interface{}{
				"is_claimed": true,
				"claimed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotClaimable
		}

		if err := tx.Where("id = ?", taskID).First(&task).Error; err != nil {
			return translate(err)
		}
		return creditBalance(tx, userID, task.Reward)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CountPendingBonusTasks counts tasks the user can still act on.
func (s *GormStore) CountPendingBonusTasks(ctx context.Context, userID string, now time.Time) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.BonusTask{}).
		Where("user_id = ? AND is_claimed = ? AND expires_at >= ?", userID, false, now).
		Count(&count).Error
	return count, err
}

// DeleteExpiredBonusTasks removes unclaimed tasks that expired before cutoff.
func (s *GormStore) DeleteExpiredBonusTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("is_claimed = ? AND expires_at < ?", false, cutoff).
		Delete(&models.BonusTask{})
	return res.RowsAffected, res.Error
}
