package workers

import (
	"context"
	"sort"
	"time"

	"mining-reward-system/models"
	"mining-reward-system/services"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const sessionsPath = "/api/v1/public/mining-sessions"

// RemoteSession is one row of the session change feed. UpdatedAt is when the
// feed recorded the session, which can be well after MinedAt.
type RemoteSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	MinedAt   time.Time `json:"mined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s RemoteSession) changedAt() time.Time {
	if s.UpdatedAt.IsZero() {
		return s.MinedAt.UTC()
	}
	return s.UpdatedAt.UTC()
}

type sessionChangesResponse struct {
	Sessions []RemoteSession `json:"sessions"`
}

// SessionRecorder applies one mining session to its owner's profile.
type SessionRecorder interface {
	RecordMiningSession(ctx context.Context, session models.MiningSession) (*services.SessionResult, error)
}

type SessionCursor interface {
	LastSessionSync(ctx context.Context) (time.Time, error)
}

// SessionSyncWorker ingests completed mining sessions. The feed is read from
// the newest stored change time inclusive, so the boundary row is seen twice
// and dropped by the session id.
type SessionSyncWorker struct {
	client   *SyncClient
	recorder SessionRecorder
	cursor   SessionCursor
	clock    clockwork.Clock
	interval time.Duration
}

func NewSessionSyncWorker(client *SyncClient, recorder SessionRecorder, cursor SessionCursor, clock clockwork.Clock, interval time.Duration) *SessionSyncWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SessionSyncWorker{client: client, recorder: recorder, cursor: cursor, clock: clock, interval: interval}
}

func (w *SessionSyncWorker) Start(ctx context.Context) {
	zap.L().Info("starting session sync worker", zap.Duration("interval", w.interval))
	go runLoop(ctx, w.clock, w.interval, "session sync", w.SyncOnce)
}

// SyncOnce returns the number of sessions newly applied. Sessions rejected as
// invalid are logged and skipped; any other failure stops the batch so the
// cursor does not move past it.
func (w *SessionSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.cursor.LastSessionSync(ctx)
	if err != nil {
		return 0, err
	}

	var response sessionChangesResponse
	if err := w.client.getChanges(ctx, sessionsPath, since, &response); err != nil {
		return 0, err
	}

	// Oldest first so a failed batch never leaves a gap behind the cursor.
	sort.SliceStable(response.Sessions, func(i, j int) bool {
		return response.Sessions[i].changedAt().Before(response.Sessions[j].changedAt())
	})

	applied := 0
	for _, s := range response.Sessions {
		result, err := w.recorder.RecordMiningSession(ctx, models.MiningSession{
			ID:            s.ID,
			UserID:        s.UserID,
			Amount:        s.Amount,
			MinedAt:       s.MinedAt.UTC(),
			FeedUpdatedAt: s.changedAt(),
		})
		if services.IsValidation(err) {
			zap.L().Warn("skipping invalid mining session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return applied, err
		}
		if result.Applied {
			applied++
		}
	}

	if applied > 0 {
		zap.L().Info("mining sessions ingested", zap.Int("applied", applied), zap.Int("received", len(response.Sessions)))
	}
	return applied, nil
}
