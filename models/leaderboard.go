package models

import "time"

// LeaderboardPeriod selects the window a leaderboard is computed over.
type LeaderboardPeriod string

const (
	LeaderboardPeriodAll    LeaderboardPeriod = "all"
	LeaderboardPeriodWeekly LeaderboardPeriod = "weekly"
	LeaderboardPeriodDaily  LeaderboardPeriod = "daily"
)

// LeaderboardPeriods lists every supported period.
var LeaderboardPeriods = []LeaderboardPeriod{
	LeaderboardPeriodAll,
	LeaderboardPeriodWeekly,
	LeaderboardPeriodDaily,
}

// Valid reports whether p is a known period.
func (p LeaderboardPeriod) Valid() bool {
	switch p {
	case LeaderboardPeriodAll, LeaderboardPeriodWeekly, LeaderboardPeriodDaily:
		return true
	}
	return false
}

// Since returns the lower bound of the period window, or nil for all-time.
func (p LeaderboardPeriod) Since(now time.Time) *time.Time {
	day := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case LeaderboardPeriodDaily:
		return &day
	case LeaderboardPeriodWeekly:
		start := day.AddDate(0, 0, -6)
		return &start
	}
	return nil
}

// LeaderboardEntry is a derived, ranked row. Not persisted.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	TotalMined  float64   `json:"total_mined"`
	Level       int       `json:"level"`
	IsPremium   bool      `json:"is_premium"`
	JoinedAt    time.Time `json:"joined_at"` // tie-break key
}
