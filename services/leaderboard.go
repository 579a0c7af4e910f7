package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"mining-reward-system/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultLeaderboardSize = 100

// RankLeaderboard orders entries by total mined (descending), then earliest
// join, then user id, and assigns ranks 1..n. The input is not modified.
func RankLeaderboard(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	ranked := make([]models.LeaderboardEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalMined != b.TotalMined {
			return a.TotalMined > b.TotalMined
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// SnapshotSource supplies unranked leaderboard rows from one consistent read.
// A nil since means all-time.
type SnapshotSource interface {
	GetLeaderboardSnapshot(ctx context.Context, since *time.Time, limit int) ([]models.LeaderboardEntry, error)
}

// SnapshotCache persists the last good snapshot outside the process.
type SnapshotCache interface {
	Save(ctx context.Context, snapshot LeaderboardSnapshot) error
	Load(ctx context.Context, period models.LeaderboardPeriod) (*LeaderboardSnapshot, error)
}

// LeaderboardSnapshot is one complete ranked leaderboard.
type LeaderboardSnapshot struct {
	Period      models.LeaderboardPeriod  `json:"period"`
	Entries     []models.LeaderboardEntry `json:"entries"`
	RefreshedAt time.Time                 `json:"refreshed_at"`
}

func (s LeaderboardSnapshot) clone() LeaderboardSnapshot {
	entries := make([]models.LeaderboardEntry, len(s.Entries))
	copy(entries, s.Entries)
	s.Entries = entries
	return s
}

// Leaderboard holds the latest ranked snapshot per period. Readers always get
// a copy of one whole snapshot; a failed refresh keeps the previous one.
type Leaderboard struct {
	source SnapshotSource
	cache  SnapshotCache
	clock  clockwork.Clock
	limit  int

	mu        sync.RWMutex
	snapshots map[models.LeaderboardPeriod]LeaderboardSnapshot
}

// NewLeaderboard builds a leaderboard. cache may be nil.
func NewLeaderboard(source SnapshotSource, cache SnapshotCache, clock clockwork.Clock, limit int) *Leaderboard {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	return &Leaderboard{
		source:    source,
		cache:     cache,
		clock:     clock,
		limit:     limit,
		snapshots: make(map[models.LeaderboardPeriod]LeaderboardSnapshot),
	}
}

// Refresh fetches, ranks and swaps in a new snapshot for period. On a fetch
// failure the previous snapshot (possibly empty) is returned together with a
// TransientFetchError.
func (l *Leaderboard) Refresh(ctx context.Context, period models.LeaderboardPeriod) (LeaderboardSnapshot, error) {
	if !period.Valid() {
		return LeaderboardSnapshot{}, invalid("period", "must be one of all, weekly, daily")
	}

	now := l.clock.Now().UTC()
	entries, err := l.source.GetLeaderboardSnapshot(ctx, period.Since(now), l.limit)
	if err != nil {
		previous, _ := l.Snapshot(period)
		return previous, &TransientFetchError{Source: "leaderboard/" + string(period), Err: err}
	}

	snapshot := LeaderboardSnapshot{
		Period:      period,
		Entries:     RankLeaderboard(entries),
		RefreshedAt: now,
	}
	l.mu.Lock()
	l.snapshots[period] = snapshot
	l.mu.Unlock()

	if l.cache != nil {
		if err := l.cache.Save(ctx, snapshot); err != nil {
			zap.L().Warn("failed to cache leaderboard snapshot", zap.String("period", string(period)), zap.Error(err))
		}
	}
	return snapshot.clone(), nil
}

// Snapshot returns the current snapshot for period and whether one exists.
func (l *Leaderboard) Snapshot(period models.LeaderboardPeriod) (LeaderboardSnapshot, bool) {
	l.mu.RLock()
	snapshot, ok := l.snapshots[period]
	l.mu.RUnlock()
	if !ok {
		return LeaderboardSnapshot{Period: period, Entries: []models.LeaderboardEntry{}}, false
	}
	return snapshot.clone(), true
}

// Current returns the held snapshot, refreshing first when none exists yet.
func (l *Leaderboard) Current(ctx context.Context, period models.LeaderboardPeriod) (LeaderboardSnapshot, error) {
	if !period.Valid() {
		return LeaderboardSnapshot{}, invalid("period", "must be one of all, weekly, daily")
	}
	if snapshot, ok := l.Snapshot(period); ok {
		return snapshot, nil
	}
	return l.Refresh(ctx, period)
}

// Warm loads cached snapshots for periods that have none in memory.
func (l *Leaderboard) Warm(ctx context.Context) int {
	if l.cache == nil {
		return 0
	}
	warmed := 0
	for _, period := range models.LeaderboardPeriods {
		if _, ok := l.Snapshot(period); ok {
			continue
		}
		cached, err := l.cache.Load(ctx, period)
		if err != nil {
			zap.L().Warn("failed to load cached leaderboard", zap.String("period", string(period)), zap.Error(err))
			continue
		}
		if cached == nil {
			continue
		}

		l.mu.Lock()
		if _, ok := l.snapshots[period]; !ok {
			l.snapshots[period] = cached.clone()
			warmed++
		}
		l.mu.Unlock()
	}
	return warmed
}
