package store

import (
	"context"
	"time"

	"mining-reward-system/models"
)

type leaderboardRow struct {
	UserID           string
	TotalMined       float64
	DisplayName      *string
	Level            *int
	IsPremium        *bool
	JoinedAt         *time.Time
	ProfileCreatedAt *time.Time
}

// GetLeaderboardSnapshot returns the top miners in one consistent read. A nil
// since ranks lifetime totals from mining_profiles; otherwise sessions mined at
// or after since are summed. Rows come back unranked.
func (s *GormStore) GetLeaderboardSnapshot(ctx context.Context, since *time.Time, limit int) ([]models.LeaderboardEntry, error) {
	var rows []leaderboardRow

	db := s.DB.WithContext(ctx)
	var err error
	if since == nil {
		err = db.Raw(`
			SELECT p.user_id, p.total_mined, d.display_name, d.level, d.is_premium,
			       d.created_at AS joined_at, p.created_at AS profile_created_at
			FROM mining_profiles p
			LEFT JOIN miner_directory d ON d.user_id = p.user_id
			WHERE p.deleted_at IS NULL AND p.total_mined > 0
			ORDER BY p.total_mined DESC, COALESCE(d.created_at, p.created_at) ASC, p.user_id ASC
			LIMIT ?
		`, limit).Scan(&rows).Error
	} else {
		err = db.Raw(`
			SELECT t.user_id, t.total_mined, d.display_name, d.level, d.is_premium,
			       d.created_at AS joined_at, p.created_at AS profile_created_at
			FROM (
				SELECT user_id, SUM(amount) AS total_mined
				FROM mining_sessions
				WHERE mined_at >= ?
				GROUP BY user_id
			) t
			LEFT JOIN miner_directory d ON d.user_id = t.user_id
			LEFT JOIN mining_profiles p ON p.user_id = t.user_id
			ORDER BY t.total_mined DESC, COALESCE(d.created_at, p.created_at) ASC, t.user_id ASC
			LIMIT ?
		`, since.UTC(), limit).Scan(&rows).Error
	}
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entry := models.LeaderboardEntry{
			UserID:      r.UserID,
			TotalMined:  r.TotalMined,
			DisplayName: defaultDisplayName(r.UserID),
			Level:       1,
		}
		if r.DisplayName != nil && *r.DisplayName != "" {
			entry.DisplayName = *r.DisplayName
		}
		if r.Level != nil {
			entry.Level = *r.Level
		}
		if r.IsPremium != nil {
			entry.IsPremium = *r.IsPremium
		}
		switch {
		case r.JoinedAt != nil:
			entry.JoinedAt = r.JoinedAt.UTC()
		case r.ProfileCreatedAt != nil:
			entry.JoinedAt = r.ProfileCreatedAt.UTC()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func defaultDisplayName(userID string) string {
	if len(userID) > 8 {
		userID = userID[:8]
	}
	return "Miner " + userID
}
