package models

import (
	"time"

	"gorm.io/gorm"
)

// MiningProfile is the per-user accounting record for mined, burned and
// recovered currency. Written only by the mining session and burn write paths.
type MiningProfile struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to profile service

	// Balances
	Balance      float64 `json:"balance" gorm:"not null;default:0"`
	TotalMined   float64 `json:"total_mined" gorm:"not null;default:0;index"`
	BurnedAmount float64 `json:"burned_amount" gorm:"not null;default:0"` // currently withheld

	// Lifetime counters, never decreased
	TotalBurned    float64 `json:"total_burned" gorm:"not null;default:0"`
	TotalRecovered float64 `json:"total_recovered" gorm:"not null;default:0"`

	RecoveryStreak int `json:"recovery_streak" gorm:"not null;default:0"`

	LastMiningAt *time.Time `json:"last_mining_at,omitempty" gorm:"index"`
	LastBurnAt   *time.Time `json:"last_burn_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
