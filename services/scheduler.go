package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mining-reward-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Scheduler owns the process's recurring jobs. Jobs receive a context that is
// cancelled by Stop.
type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewScheduler(clock clockwork.Clock) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, ctx: ctx, cancel: cancel}, nil
}

// Every runs fn on a fixed interval. A run that overlaps the previous one is skipped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context) error, startNow bool) error {
	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if startNow {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	_, err := s.sched.NewJob(gocron.DurationJob(interval), gocron.NewTask(s.wrap(name, fn)), opts...)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Daily runs fn once a day at hour:minute UTC.
func (s *Scheduler) Daily(name string, hour, minute uint, fn func(ctx context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(s.wrap(name, fn)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		if s.ctx.Err() != nil {
			return
		}
		if err := fn(s.ctx); err != nil {
			zap.L().Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop cancels running jobs and shuts the scheduler down. Safe to call twice.
func (s *Scheduler) Stop() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.sched.Shutdown()
	})
	return err
}

// LeaderboardPoller refreshes every leaderboard period on a fixed interval.
// Refresh failures are logged and the stale snapshot keeps being served.
type LeaderboardPoller struct {
	board     *Leaderboard
	scheduler *Scheduler
	interval  time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewLeaderboardPoller(board *Leaderboard, clock clockwork.Clock, interval time.Duration) (*LeaderboardPoller, error) {
	scheduler, err := NewScheduler(clock)
	if err != nil {
		return nil, err
	}
	return &LeaderboardPoller{board: board, scheduler: scheduler, interval: interval}, nil
}

// Start schedules the refresh job with an immediate first run.
func (p *LeaderboardPoller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return nil
	}

	if err := p.scheduler.Every("leaderboard-refresh", p.interval, p.refreshAll, true); err != nil {
		return err
	}
	p.scheduler.Start()
	p.started = true
	return nil
}

func (p *LeaderboardPoller) refreshAll(ctx context.Context) error {
	for _, period := range models.LeaderboardPeriods {
		if _, err := p.board.Refresh(ctx, period); err != nil {
			zap.L().Warn("leaderboard refresh failed, serving previous snapshot",
				zap.String("period", string(period)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Stop ends polling. Idempotent; a stopped poller cannot be restarted.
func (p *LeaderboardPoller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	return p.scheduler.Stop()
}

// JobSet is the recurring maintenance work registered by RegisterJobs.
type JobSet struct {
	Burns             *BurnService
	Bonuses           *BonusService
	Archiver          *LeaderboardArchiver // optional
	BurnSweepInterval time.Duration
	BonusPurgeEvery   time.Duration
}

// RegisterJobs adds the burn sweep, expired bonus purge and daily leaderboard
// archive to s.
func RegisterJobs(s *Scheduler, jobs JobSet) error {
	if jobs.BurnSweepInterval <= 0 {
		jobs.BurnSweepInterval = 15 * time.Minute
	}
	if jobs.BonusPurgeEvery <= 0 {
		jobs.BonusPurgeEvery = time.Hour
	}

	if err := s.Every("inactivity-burn-sweep", jobs.BurnSweepInterval, func(ctx context.Context) error {
		_, err := jobs.Burns.ApplyInactivityBurns(ctx)
		return err
	}, false); err != nil {
		return err
	}

	if err := s.Every("bonus-task-purge", jobs.BonusPurgeEvery, func(ctx context.Context) error {
		purged, err := jobs.Bonuses.PurgeExpired(ctx)
		if err == nil && purged > 0 {
			zap.L().Info("purged expired bonus tasks", zap.Int64("count", purged))
		}
		return err
	}, false); err != nil {
		return err
	}

	if jobs.Archiver != nil {
		if err := s.Daily("leaderboard-archive", 0, 5, func(ctx context.Context) error {
			_, err := jobs.Archiver.Archive(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}
