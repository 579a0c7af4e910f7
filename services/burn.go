package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"mining-reward-system/models"
	"mining-reward-system/store"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AtRiskAfterHours          = 24.0
	BurnAfterHours            = 48.0
	RecoveryMilestoneSessions = 4
	RecoveryFraction          = 0.25

	burnSweepBatch = 500
)

// BurnStatus is a read-only projection of a profile's burn and recovery state.
type BurnStatus struct {
	BurnedAmount              float64    `json:"burned_amount"`
	TotalBurned               float64    `json:"total_burned"`
	TotalRecovered            float64    `json:"total_recovered"`
	RecoveryStreak            int        `json:"recovery_streak"`
	LastMiningAt              *time.Time `json:"last_mining_at"`
	HoursSinceLastMining      float64    `json:"hours_since_last_mining"`
	IsAtRisk                  bool       `json:"is_at_risk"`
	HoursUntilBurn            float64    `json:"hours_until_burn"`
	SessionsUntilNextRecovery int        `json:"sessions_until_next_recovery"`
	RecoveryAmount            float64    `json:"recovery_amount"`
	RecoveryProgress          float64    `json:"recovery_progress"`
}

// ComputeBurnStatus projects the profile at now. Users who never mined are
// not at risk.
func ComputeBurnStatus(profile *models.MiningProfile, now time.Time) (BurnStatus, error) {
	if profile.BurnedAmount < 0 {
		return BurnStatus{}, invalid("burned_amount", "must not be negative")
	}
	if profile.RecoveryStreak < 0 {
		return BurnStatus{}, invalid("recovery_streak", "must not be negative")
	}

	var hours float64
	if profile.LastMiningAt != nil {
		hours = math.Max(0, now.Sub(*profile.LastMiningAt).Hours())
	}
	cycle := profile.RecoveryStreak % RecoveryMilestoneSessions

	return BurnStatus{
		BurnedAmount:              profile.BurnedAmount,
		TotalBurned:               profile.TotalBurned,
		TotalRecovered:            profile.TotalRecovered,
		RecoveryStreak:            profile.RecoveryStreak,
		LastMiningAt:              profile.LastMiningAt,
		HoursSinceLastMining:      hours,
		IsAtRisk:                  hours > AtRiskAfterHours,
		HoursUntilBurn:            math.Max(0, BurnAfterHours-hours),
		SessionsUntilNextRecovery: RecoveryMilestoneSessions - cycle,
		RecoveryAmount:            recoveryAmount(profile.BurnedAmount),
		RecoveryProgress:          float64(cycle) / RecoveryMilestoneSessions * 100,
	}, nil
}

func recoveryAmount(burned float64) float64 {
	if burned <= 0 {
		return 0
	}
	return math.Min(burned, burned*RecoveryFraction)
}

// BurnStore is the persistence the burn write path needs.
type BurnStore interface {
	GetProfile(ctx context.Context, userID string) (*models.MiningProfile, error)
	ApplyMiningSession(ctx context.Context, session models.MiningSession, apply func(*models.MiningProfile) error) (*models.MiningProfile, bool, error)
	UpdateProfileBurnState(ctx context.Context, userID string, mutate func(*models.MiningProfile) (bool, error)) (*models.MiningProfile, bool, error)
	ListBurnCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.MiningProfile, error)
}

type BurnService struct {
	store     BurnStore
	clock     clockwork.Clock
	publisher Publisher
	burnRate  float64
}

func NewBurnService(store BurnStore, clock clockwork.Clock, publisher Publisher, burnRate float64) *BurnService {
	return &BurnService{store: store, clock: clock, publisher: publisher, burnRate: burnRate}
}

// GetBurnStatus loads the user's profile and projects it at the current time.
func (s *BurnService) GetBurnStatus(ctx context.Context, userID string) (BurnStatus, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return BurnStatus{}, notFound("profile", userID)
	}
	if err != nil {
		return BurnStatus{}, err
	}
	return ComputeBurnStatus(profile, s.clock.Now())
}

// SessionResult reports what recording a session changed.
type SessionResult struct {
	Profile   *models.MiningProfile `json:"profile"`
	Applied   bool                  `json:"applied"`
	Recovered float64               `json:"recovered"`
}

// RecordMiningSession credits a completed session and advances the recovery
// streak. Every fourth session restores a quarter of the outstanding burned
// amount and restarts the streak. Replaying a session id is a no-op.
func (s *BurnService) RecordMiningSession(ctx context.Context, session models.MiningSession) (*SessionResult, error) {
	switch {
	case strings.TrimSpace(session.ID) == "":
		return nil, invalid("id", "session id is required")
	case strings.TrimSpace(session.UserID) == "":
		return nil, invalid("user_id", "user id is required")
	case session.Amount < 0 || math.IsNaN(session.Amount) || math.IsInf(session.Amount, 0):
		return nil, invalid("amount", "must be a non-negative number")
	case session.MinedAt.IsZero():
		return nil, invalid("mined_at", "session time is required")
	}
	session.MinedAt = session.MinedAt.UTC()

	var recovered float64
	profile, applied, err := s.store.ApplyMiningSession(ctx, session, func(p *models.MiningProfile) error {
		recovered = 0
		p.Balance += session.Amount
		p.TotalMined += session.Amount
		if p.LastMiningAt == nil || session.MinedAt.After(*p.LastMiningAt) {
			minedAt := session.MinedAt
			p.LastMiningAt = &minedAt
		}

		p.RecoveryStreak++
		if p.RecoveryStreak >= RecoveryMilestoneSessions {
			p.RecoveryStreak = 0
			if p.BurnedAmount > 0 {
				recovered = recoveryAmount(p.BurnedAmount)
				p.BurnedAmount -= recovered
				p.Balance += recovered
				p.TotalRecovered += recovered
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		recovered = 0
	}

	if recovered > 0 {
		publish(ctx, s.publisher, Event{
			Type:       models.EventRecoveryMilestone,
			UserID:     session.UserID,
			OccurredAt: s.clock.Now(),
			Amount:     recovered,
			Attrs:      map[string]string{"session_id": session.ID},
		})
	}

	return &SessionResult{Profile: profile, Applied: applied, Recovered: recovered}, nil
}

// ApplyInactivityBurns burns a share of the balance of every profile idle for
// at least 48 hours, once per idle stretch. It returns how many profiles were
// burned. Failures on one profile do not stop the sweep.
func (s *BurnService) ApplyInactivityBurns(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-time.Duration(BurnAfterHours * float64(time.Hour)))

	candidates, err := s.store.ListBurnCandidates(ctx, cutoff, burnSweepBatch)
	if err != nil {
		return 0, err
	}

	burned := 0
	for _, candidate := range candidates {
		var amount float64
		_, changed, err := s.store.UpdateProfileBurnState(ctx, candidate.UserID, func(p *models.MiningProfile) (bool, error) {
			if !burnDue(p, cutoff) {
				return false, nil
			}
			amount = decimal.NewFromFloat(p.Balance).
				Mul(decimal.NewFromFloat(s.burnRate)).
				Truncate(2).
				InexactFloat64()

			p.Balance -= amount
			p.BurnedAmount += amount
			p.TotalBurned += amount
			p.RecoveryStreak = 0
			p.LastBurnAt = &now
			return true, nil
		})
		if err != nil {
			zap.L().Error("inactivity burn failed", zap.String("user_id", candidate.UserID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}

		burned++
		if amount > 0 {
			publish(ctx, s.publisher, Event{
				Type:       models.EventBurnApplied,
				UserID:     candidate.UserID,
				OccurredAt: now,
				Amount:     amount,
			})
		}
	}

	if burned > 0 {
		zap.L().Info("inactivity burn sweep finished", zap.Int("burned", burned), zap.Int("candidates", len(candidates)))
	}
	return burned, nil
}

// burnDue re-checks the sweep conditions against the locked row.
func burnDue(p *models.MiningProfile, cutoff time.Time) bool {
	if p.LastMiningAt == nil || p.LastMiningAt.After(cutoff) || p.Balance <= 0 {
		return false
	}
	return p.LastBurnAt == nil || p.LastBurnAt.Before(*p.LastMiningAt)
}
