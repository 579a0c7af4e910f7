package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mining-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrClaimExists      = errors.New("claim already exists for this day")
	ErrTaskNotClaimable = errors.New("bonus task is not claimable")
	ErrGroupFull        = errors.New("group is full")
	ErrAlreadyMember    = errors.New("user is already a member")
	ErrMembershipLimit  = errors.New("user reached the group membership limit")
	ErrCodeTaken        = errors.New("group code already in use")
)

// GormStore is the persistence boundary of the accounting core. Every method
// takes a context and returns the sentinels above instead of gorm errors.
type GormStore struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// Open connects to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AppendEvent writes a domain event to the notification outbox.
func (s *GormStore) AppendEvent(ctx context.Context, event *models.DomainEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Create(event).Error
}

// ListPendingEvents returns undelivered outbox events, oldest first.
func (s *GormStore) ListPendingEvents(ctx context.Context, limit int) ([]models.DomainEvent, error) {
	var events []models.DomainEvent
	err := s.DB.WithContext(ctx).
		Where("delivered_at IS NULL").
		Order("occurred_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkEventsDelivered acknowledges outbox events.
func (s *GormStore) MarkEventsDelivered(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).
		Model(&models.DomainEvent{}).
		Where("id IN ?", ids).
		Update("delivered_at", at).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// creditBalance adds amount to the user's spendable balance inside tx,
// creating the profile when the user has none yet.
func creditBalance(tx *gorm.DB, userID string, amount float64) error {
	profile, err := lockProfile(tx, userID)
	if err != nil {
		return err
	}
	return tx.Model(profile).Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// lockProfile loads the user's profile with a row lock, creating it first if missing.
func lockProfile(tx *gorm.DB, userID string) (*models.MiningProfile, error) {
	seed := models.MiningProfile{ID: uuid.NewString(), UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}

	var profile models.MiningProfile
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&profile).Error; err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}
