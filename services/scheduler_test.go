package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mining-reward-system/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardPoller_RefreshesAllPeriods(t *testing.T) {
	source := &stubSource{entries: sampleEntries()}
	clock := clockwork.NewRealClock()
	board := NewLeaderboard(source, nil, clock, 10)

	poller, err := NewLeaderboardPoller(board, clock, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, poller.Start())
	require.NoError(t, poller.Start())

	assert.Eventually(t, func() bool {
		for _, p := range models.LeaderboardPeriods {
			if _, ok := board.Snapshot(p); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	source.set(nil, errors.New("backend unavailable"))
	time.Sleep(120 * time.Millisecond)
	snap, ok := board.Snapshot(models.LeaderboardPeriodAll)
	assert.True(t, ok, "failed refreshes keep the previous snapshot")
	assert.Len(t, snap.Entries, 5)

	require.NoError(t, poller.Stop())
	require.NoError(t, poller.Stop())
	require.NoError(t, poller.Start(), "starting a stopped poller is a no-op")
}

func TestScheduler_RunsJobsAndStopsOnce(t *testing.T) {
	sched, err := NewScheduler(clockwork.NewRealClock())
	require.NoError(t, err)

	var runs atomic.Int32
	var sawCancel atomic.Bool
	require.NoError(t, sched.Every("tick", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		go func() {
			<-ctx.Done()
			sawCancel.Store(true)
		}()
		return errors.New("logged, not fatal")
	}, true))
	sched.Start()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
	assert.Eventually(t, sawCancel.Load, time.Second, 5*time.Millisecond)
}

func TestRegisterJobs(t *testing.T) {
	f := newFixture(t)
	sched, err := NewScheduler(f.clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop() })

	board := NewLeaderboard(&stubSource{}, nil, f.clock, 10)
	err = RegisterJobs(sched, JobSet{
		Burns:    NewBurnService(f.store, f.clock, f.publisher, 0.1),
		Bonuses:  NewBonusService(f.store, f.clock, f.publisher, nil),
		Archiver: NewLeaderboardArchiver(board, &memoryUploader{}, f.clock),
	})
	require.NoError(t, err)
	assert.Len(t, sched.sched.Jobs(), 3)
}
