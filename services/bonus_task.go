package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"mining-reward-system/models"
	"mining-reward-system/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// expiredTaskRetention is how long unclaimed expired tasks are kept before PurgeExpired removes them.
const expiredTaskRetention = 7 * 24 * time.Hour

// BonusTemplate is one entry of the fixed task catalog.
type BonusTemplate struct {
	Type      models.BonusTaskType `json:"task_type"`
	Title     string               `json:"title"`
	Emoji     string               `json:"emoji"`
	MinReward float64              `json:"min_reward"`
	MaxReward float64              `json:"max_reward"`
	TTL       time.Duration        `json:"-"`
}

var bonusCatalog = []BonusTemplate{
	{Type: models.BonusTaskWatchAd, Title: "Watch an ad", Emoji: "📺", MinReward: 0.5, MaxReward: 2, TTL: 2 * time.Hour},
	{Type: models.BonusTaskDailyCheckIn, Title: "Daily check-in", Emoji: "📅", MinReward: 1, MaxReward: 3, TTL: 24 * time.Hour},
	{Type: models.BonusTaskInviteFriend, Title: "Invite a friend", Emoji: "🤝", MinReward: 5, MaxReward: 10, TTL: 72 * time.Hour},
	{Type: models.BonusTaskShareApp, Title: "Share the app", Emoji: "📣", MinReward: 1, MaxReward: 4, TTL: 24 * time.Hour},
	{Type: models.BonusTaskMiningStreak, Title: "Mine 4 times today", Emoji: "⛏️", MinReward: 3, MaxReward: 6, TTL: 24 * time.Hour},
}

// BonusCatalog returns a copy of the task catalog.
func BonusCatalog() []BonusTemplate {
	out := make([]BonusTemplate, len(bonusCatalog))
	copy(out, bonusCatalog)
	return out
}

func LookupBonusTemplate(taskType models.BonusTaskType) (BonusTemplate, bool) {
	for _, tpl := range bonusCatalog {
		if tpl.Type == taskType {
			return tpl, true
		}
	}
	return BonusTemplate{}, false
}

// NewBonusTask instantiates a template for userID. The reward is drawn once,
// in whole cents within the template bounds, and never re-rolled.
func NewBonusTask(userID string, taskType models.BonusTaskType, now time.Time, rng *rand.Rand) (*models.BonusTask, error) {
	tpl, ok := LookupBonusTemplate(taskType)
	if !ok {
		return nil, invalid("task_type", "unknown bonus task type")
	}
	if userID == "" {
		return nil, invalid("user_id", "user id is required")
	}

	minCents := decimal.NewFromFloat(tpl.MinReward).Shift(2).IntPart()
	maxCents := decimal.NewFromFloat(tpl.MaxReward).Shift(2).IntPart()
	cents := minCents + rng.Int63n(maxCents-minCents+1)

	return &models.BonusTask{
		ID:        uuid.NewString(),
		UserID:    userID,
		TaskType:  tpl.Type,
		Title:     tpl.Title,
		Emoji:     tpl.Emoji,
		Reward:    decimal.New(cents, -2).InexactFloat64(),
		ExpiresAt: now.UTC().Add(tpl.TTL),
	}, nil
}

// MarkCompleted moves a pending task to completed. It reports whether the
// task changed; completing twice is a no-op, completing an expired task is a
// conflict.
func MarkCompleted(task *models.BonusTask, now time.Time) (bool, error) {
	switch task.Status(now) {
	case models.BonusTaskStatusCompleted, models.BonusTaskStatusClaimed:
		return false, nil
	case models.BonusTaskStatusExpired:
		return false, conflict("complete bonus task", "task has expired")
	}
	completedAt := now.UTC()
	task.IsCompleted = true
	task.CompletedAt = &completedAt
	return true, nil
}

// MarkClaimed moves a completed task to claimed. The task is untouched on error.
func MarkClaimed(task *models.BonusTask, now time.Time) error {
	switch task.Status(now) {
	case models.BonusTaskStatusPending:
		return conflict("claim bonus task", "task is not completed")
	case models.BonusTaskStatusExpired:
		return conflict("claim bonus task", "task has expired")
	case models.BonusTaskStatusClaimed:
		return conflict("claim bonus task", "task already claimed")
	}
	claimedAt := now.UTC()
	task.IsClaimed = true
	task.ClaimedAt = &claimedAt
	return nil
}

// BonusTaskView is a task with its derived status.
type BonusTaskView struct {
	models.BonusTask
	Status models.BonusTaskStatus `json:"status"`
}

// BonusStore is the persistence the bonus task operations need.
type BonusStore interface {
	CreateBonusTask(ctx context.Context, task *models.BonusTask) error
	GetBonusTasks(ctx context.Context, userID string) ([]models.BonusTask, error)
	GetBonusTask(ctx context.Context, taskID string) (*models.BonusTask, error)
	UpdateBonusTaskState(ctx context.Context, userID, taskID string, now time.Time) (*models.BonusTask, bool, error)
	ClaimBonusTask(ctx context.Context, userID, taskID string, now time.Time) (*models.BonusTask, error)
	CountPendingBonusTasks(ctx context.Context, userID string, now time.Time) (int64, error)
	DeleteExpiredBonusTasks(ctx context.Context, cutoff time.Time) (int64, error)
}

type BonusService struct {
	store     BonusStore
	clock     clockwork.Clock
	publisher Publisher

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBonusService(store BonusStore, clock clockwork.Clock, publisher Publisher, rng *rand.Rand) *BonusService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &BonusService{store: store, clock: clock, publisher: publisher, rng: rng}
}

// IssueTask creates a new task of taskType for userID.
func (s *BonusService) IssueTask(ctx context.Context, userID string, taskType models.BonusTaskType) (*BonusTaskView, error) {
	now := s.clock.Now()

	s.mu.Lock()
	task, err := NewBonusTask(userID, taskType, now, s.rng)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateBonusTask(ctx, task); err != nil {
		return nil, err
	}
	return &BonusTaskView{BonusTask: *task, Status: task.Status(now)}, nil
}

func (s *BonusService) ListTasks(ctx context.Context, userID string) ([]BonusTaskView, error) {
	tasks, err := s.store.GetBonusTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views := make([]BonusTaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, BonusTaskView{BonusTask: t, Status: t.Status(now)})
	}
	return views, nil
}

// CompleteTask records the completion signal for a task. Only the first
// signal is persisted and announced; repeats, including ones that race a
// claim, leave the stored task as it is.
func (s *BonusService) CompleteTask(ctx context.Context, userID, taskID string) (*BonusTaskView, error) {
	task, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	check := *task
	changed, err := MarkCompleted(&check, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &BonusTaskView{BonusTask: *task, Status: task.Status(now)}, nil
	}

	current, changed, err := s.store.UpdateBonusTaskState(ctx, userID, taskID, now.UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("bonus task", taskID)
	}
	if err != nil {
		return nil, err
	}
	if changed {
		publish(ctx, s.publisher, Event{
			Type:       models.EventBonusTaskCompleted,
			UserID:     userID,
			OccurredAt: now,
			Amount:     current.Reward,
			Attrs:      map[string]string{"task_id": current.ID, "title": current.Title},
		})
	}
	return &BonusTaskView{BonusTask: *current, Status: current.Status(now)}, nil
}

// ClaimTask pays out a completed, unexpired task exactly once.
func (s *BonusService) ClaimTask(ctx context.Context, userID, taskID string) (*BonusTaskView, error) {
	task, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	check := *task
	if err := MarkClaimed(&check, now); err != nil {
		return nil, err
	}

	claimed, err := s.store.ClaimBonusTask(ctx, userID, taskID, now.UTC())
	if errors.Is(err, store.ErrTaskNotClaimable) {
		return nil, conflict("claim bonus task", "task is no longer claimable")
	}
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, Event{
		Type:       models.EventBonusTaskClaimed,
		UserID:     userID,
		OccurredAt: now,
		Amount:     claimed.Reward,
		Attrs:      map[string]string{"task_id": claimed.ID, "title": claimed.Title},
	})
	return &BonusTaskView{BonusTask: *claimed, Status: claimed.Status(now)}, nil
}

// CountPending counts tasks that are neither claimed nor expired.
func (s *BonusService) CountPending(ctx context.Context, userID string) (int64, error) {
	return s.store.CountPendingBonusTasks(ctx, userID, s.clock.Now().UTC())
}

// PurgeExpired deletes unclaimed tasks that expired more than a week ago.
func (s *BonusService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredBonusTasks(ctx, s.clock.Now().UTC().Add(-expiredTaskRetention))
}

func (s *BonusService) ownedTask(ctx context.Context, userID, taskID string) (*models.BonusTask, error) {
	task, err := s.store.GetBonusTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && task.UserID != userID) {
		return nil, notFound("bonus task", taskID)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}
