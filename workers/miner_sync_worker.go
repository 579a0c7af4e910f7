package workers

import (
	"context"
	"strings"
	"time"

	"mining-reward-system/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const profilesPath = "/api/v1/public/profiles"

// RemoteProfile is one row of the profile change feed.
type RemoteProfile struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Level      int       `json:"level"`
	IsPremium  bool      `json:"is_premium"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

type MinerDirectoryStore interface {
	UpsertMinerDirectory(ctx context.Context, entries []models.MinerDirectoryEntry) error
	LastMinerSync(ctx context.Context) (time.Time, error)
}

// MinerSyncWorker mirrors public profile fields into the local miner
// directory used to decorate leaderboard rows.
type MinerSyncWorker struct {
	client   *SyncClient
	store    MinerDirectoryStore
	clock    clockwork.Clock
	interval time.Duration
}

func NewMinerSyncWorker(client *SyncClient, store MinerDirectoryStore, clock clockwork.Clock, interval time.Duration) *MinerSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MinerSyncWorker{client: client, store: store, clock: clock, interval: interval}
}

func (w *MinerSyncWorker) Start(ctx context.Context) {
	zap.L().Info("starting miner sync worker", zap.Duration("interval", w.interval))
	go runLoop(ctx, w.clock, w.interval, "miner sync", w.SyncOnce)
}

// SyncOnce pulls every profile changed since the newest mirrored row and
// returns how many were upserted.
func (w *MinerSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.store.LastMinerSync(ctx)
	if err != nil {
		return 0, err
	}

	var response profileChangesResponse
	if err := w.client.getChanges(ctx, profilesPath, since, &response); err != nil {
		return 0, err
	}
	if len(response.Users) == 0 {
		return 0, nil
	}

	entries := make([]models.MinerDirectoryEntry, 0, len(response.Users))
	for _, u := range response.Users {
		userID := u.ExternalID
		if userID == "" {
			userID = u.ID
		}
		if userID == "" {
			zap.L().Warn("skipping profile without id", zap.String("username", u.Username))
			continue
		}
		level := u.Level
		if level < 1 {
			level = 1
		}
		entries = append(entries, models.MinerDirectoryEntry{
			UserID:      userID,
			DisplayName: strings.TrimSpace(u.Username),
			Level:       level,
			IsPremium:   u.IsPremium,
			CreatedAt:   u.CreatedAt.UTC(),
			UpdatedAt:   u.UpdatedAt.UTC(),
		})
	}

	if err := w.store.UpsertMinerDirectory(ctx, entries); err != nil {
		return 0, err
	}
	zap.L().Debug("miner directory synced", zap.Int("count", len(entries)), zap.Time("since", since))
	return len(entries), nil
}

// runLoop runs fn once immediately and then on every tick until ctx ends.
func runLoop(ctx context.Context, clock clockwork.Clock, interval time.Duration, name string, fn func(context.Context) (int, error)) {
	if _, err := fn(ctx); err != nil {
		zap.L().Warn("initial sync failed", zap.String("worker", name), zap.Error(err))
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := fn(ctx); err != nil {
				zap.L().Error("sync batch failed", zap.String("worker", name), zap.Error(err))
			}
		case <-ctx.Done():
			zap.L().Info("sync worker stopped", zap.String("worker", name))
			return
		}
	}
}
