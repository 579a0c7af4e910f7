package models

import "time"

// MiningSession is a completed session ingested from the session feed.
// The primary key is the feed's own session id so ingestion is idempotent.
// FeedUpdatedAt is the feed's change time for the row and drives the sync
// cursor; sessions can arrive late with an older MinedAt.
type MiningSession struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID        string    `gorm:"index;not null" json:"user_id"`
	Amount        float64   `gorm:"not null" json:"amount"`
	MinedAt       time.Time `gorm:"index;not null" json:"mined_at"`
	FeedUpdatedAt time.Time `gorm:"index" json:"feed_updated_at"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}
