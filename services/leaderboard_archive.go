package services

import (
	"context"
	"fmt"

	"mining-reward-system/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// JSONUploader stores a JSON document under key and returns its public URL.
type JSONUploader interface {
	UploadJSON(ctx context.Context, key string, v interface{}) (string, error)
}

// LeaderboardArchiver writes the all-time leaderboard to object storage once a day.
type LeaderboardArchiver struct {
	board    *Leaderboard
	uploader JSONUploader
	clock    clockwork.Clock
}

func NewLeaderboardArchiver(board *Leaderboard, uploader JSONUploader, clock clockwork.Clock) *LeaderboardArchiver {
	return &LeaderboardArchiver{board: board, uploader: uploader, clock: clock}
}

// Archive refreshes the all-time board and uploads it under
// leaderboards/all/YYYY-MM-DD.json. A failed refresh archives the held snapshot.
func (a *LeaderboardArchiver) Archive(ctx context.Context) (string, error) {
	snapshot, err := a.board.Refresh(ctx, models.LeaderboardPeriodAll)
	if err != nil {
		if !IsTransientFetch(err) {
			return "", err
		}
		zap.L().Warn("archiving last held leaderboard snapshot", zap.Error(err))
	}
	if len(snapshot.Entries) == 0 {
		return "", nil
	}

	key := fmt.Sprintf("leaderboards/%s/%s.json", models.LeaderboardPeriodAll, models.ActivityDate(a.clock.Now()))
	url, err := a.uploader.UploadJSON(ctx, key, snapshot)
	if err != nil {
		return "", fmt.Errorf("archive leaderboard: %w", err)
	}
	zap.L().Info("leaderboard archived", zap.String("url", url), zap.Int("entries", len(snapshot.Entries)))
	return url, nil
}
