package models

import "time"

// MinerDirectoryEntry is a local snapshot of the public profile fields the
// leaderboard needs. Populated by the miner sync worker from the profile service.
type MinerDirectoryEntry struct {
	UserID      string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	DisplayName string    `gorm:"index;not null" json:"display_name"`
	Level       int       `gorm:"not null;default:1" json:"level"`
	IsPremium   bool      `gorm:"not null;default:false" json:"is_premium"`
	CreatedAt   time.Time `json:"created_at"` // account creation on the profile service
	UpdatedAt   time.Time `json:"updated_at"`
}

func (MinerDirectoryEntry) TableName() string {
	return "miner_directory"
}
