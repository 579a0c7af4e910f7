package models

import "time"

// EventType names a domain event emitted by the accounting core.
type EventType string

const (
	EventRecoveryMilestone  EventType = "recovery.milestone_reached"
	EventBurnApplied        EventType = "burn.applied"
	EventGroupRewardClaimed EventType = "group.reward_claimed"
	EventBonusTaskCompleted EventType = "bonus.task_completed"
	EventBonusTaskClaimed   EventType = "bonus.task_claimed"
)

// DomainEvent is an outbox row picked up by the external notifier.
type DomainEvent struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type        EventType  `gorm:"type:varchar(64);not null;index" json:"type"`
	UserID      string     `gorm:"index;not null" json:"user_id"`
	Message     string     `gorm:"type:text" json:"message"`
	Payload     string     `gorm:"type:text" json:"payload"` // JSON object
	OccurredAt  time.Time  `gorm:"not null;index" json:"occurred_at"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&MiningProfile{},
		&MiningSession{},
		&MinerDirectoryEntry{},
		&SecurityGroup{},
		&GroupMember{},
		&GroupDailyActivity{},
		&GroupClaim{},
		&BonusTask{},
		&DomainEvent{},
	}
}
