package models

import "time"

// BonusTaskType identifies a template in the fixed bonus task catalog.
type BonusTaskType string

const (
	BonusTaskWatchAd      BonusTaskType = "watch_ad"
	BonusTaskDailyCheckIn BonusTaskType = "daily_check_in"
	BonusTaskInviteFriend BonusTaskType = "invite_friend"
	BonusTaskShareApp     BonusTaskType = "share_app"
	BonusTaskMiningStreak BonusTaskType = "mining_streak"
)

// BonusTaskStatus is derived from the stored flags and the current time.
type BonusTaskStatus string

const (
	BonusTaskStatusPending   BonusTaskStatus = "pending"
	BonusTaskStatusCompleted BonusTaskStatus = "completed"
	BonusTaskStatusClaimed   BonusTaskStatus = "claimed"
	BonusTaskStatusExpired   BonusTaskStatus = "expired"
)

// BonusTask is a per-user instance of a catalog template. The reward is fixed
// when the task is issued.
type BonusTask struct {
	ID          string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string        `gorm:"index;not null" json:"user_id"`
	TaskType    BonusTaskType `gorm:"type:varchar(32);not null" json:"task_type"`
	Title       string        `json:"title"`
	Emoji       string        `gorm:"size:10" json:"emoji"`
	Reward      float64       `gorm:"not null" json:"reward"`
	IsCompleted bool          `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	IsClaimed   bool          `gorm:"not null;default:false;index" json:"is_claimed"`
	ClaimedAt   *time.Time    `json:"claimed_at,omitempty"`
	ExpiresAt   time.Time     `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// Status derives the lifecycle state at now. A claimed task stays claimed
// after its expiry.
func (t *BonusTask) Status(now time.Time) BonusTaskStatus {
	switch {
	case t.IsClaimed:
		return BonusTaskStatusClaimed
	case now.After(t.ExpiresAt):
		return BonusTaskStatusExpired
	case t.IsCompleted:
		return BonusTaskStatusCompleted
	}
	return BonusTaskStatusPending
}
