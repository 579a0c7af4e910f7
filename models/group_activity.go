package models

import "time"

// MaxMinesPerDay is the per-day mining session limit counted towards group rewards.
const MaxMinesPerDay = 4

// ActivityDateLayout formats the UTC calendar day used as activity and claim keys.
const ActivityDateLayout = "2006-01-02"

// GroupDailyActivity is one row per (group, user, day).
type GroupDailyActivity struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID      string    `gorm:"not null;uniqueIndex:idx_group_activity_day" json:"group_id"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_group_activity_day" json:"user_id"`
	ActivityDate string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_group_activity_day" json:"activity_date"`
	MinesToday   int       `gorm:"not null;default:0" json:"mines_today"`
	IsActive     bool      `gorm:"not null;default:false" json:"is_active"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// GroupClaim records that a user collected their share of a group's reward
// for one day. Rows are never updated.
type GroupClaim struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID   string    `gorm:"not null;uniqueIndex:idx_group_claim_day" json:"group_id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_group_claim_day;index" json:"user_id"`
	ClaimDate string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_group_claim_day" json:"claim_date"`
	Amount    float64   `gorm:"not null" json:"amount"`
	ClaimedAt time.Time `gorm:"not null" json:"claimed_at"`
}

// ActivityDate returns the UTC day key for t.
func ActivityDate(t time.Time) string {
	return t.UTC().Format(ActivityDateLayout)
}
