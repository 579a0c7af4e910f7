package store

import (
	"context"
	"time"

	"mining-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetGroup returns a group by id.
func (s *GormStore) GetGroup(ctx context.Context, groupID string) (*models.SecurityGroup, error) {
	var group models.SecurityGroup
	if err := s.DB.WithContext(ctx).Where("id = ?", groupID).First(&group).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// GetGroupByCode returns a group by its join code.
func (s *GormStore) GetGroupByCode(ctx context.Context, code string) (*models.SecurityGroup, error) {
	var group models.SecurityGroup
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&group).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (s *GormStore) ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := s.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

// ListUserGroups returns every group the user currently belongs to.
func (s *GormStore) ListUserGroups(ctx context.Context, userID string) ([]models.SecurityGroup, error) {
	var groups []models.SecurityGroup
	err := s.DB.WithContext(ctx).
		Joins("JOIN group_members gm ON gm.group_id = security_groups.id").
		Where("gm.user_id = ?", userID).
		Order("gm.joined_at ASC").
		Find(&groups).Error
	return groups, err
}

// CreateGroupWithOwner inserts the group and its first member atomically.
func (s *GormStore) CreateGroupWithOwner(ctx context.Context, group *models.SecurityGroup, joinedAt time.Time) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := reserveMembershipSlot(tx, group.CreatedBy); err != nil {
			return err
		}

		if group.ID == "" {
			group.ID = uuid.NewString()
		}
		group.MemberCount = 1
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(group)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCodeTaken
		}

		return tx.Create(&models.GroupMember{
			ID:       uuid.NewString(),
			GroupID:  group.ID,
			UserID:   group.CreatedBy,
			JoinedAt: joinedAt,
		}).Error
	})
}

// AddGroupMember adds userID to the group, enforcing both membership caps
// under locks on the user's profile and the group row, taken in that order.
func (s *GormStore) AddGroupMember(ctx context.Context, groupID, userID string, joinedAt time.Time) (*models.SecurityGroup, error) {
	var group models.SecurityGroup
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProfile(tx, userID); err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", groupID).
			First(&group).Error; err != nil {
			return translate(err)
		}

		var existing int64
		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyMember
		}
		if group.MemberCount >= models.MaxGroupMembers {
			return ErrGroupFull
		}
		if err := countMemberships(tx, userID); err != nil {
			return err
		}

		if err := tx.Create(&models.GroupMember{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			UserID:   userID,
			JoinedAt: joinedAt,
		}).Error; err != nil {
			return err
		}

		group.MemberCount++
		return tx.Model(&group).Update("member_count", group.MemberCount).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// RemoveGroupMember deletes the membership. Activity and claim history stay.
func (s *GormStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.SecurityGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", groupID).
			First(&group).Error; err != nil {
			return translate(err)
		}

		res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		count := group.MemberCount - 1
		if count < 0 {
			count = 0
		}
		return tx.Model(&group).Update("member_count", count).Error
	})
}

// reserveMembershipSlot locks the user's profile row and checks the
// groups-per-user cap. Concurrent joins and creates by the same user queue
// on that lock, so the count cannot go stale before the insert.
func reserveMembershipSlot(tx *gorm.DB, userID string) error {
	if _, err := lockProfile(tx, userID); err != nil {
		return err
	}
	return countMemberships(tx, userID)
}

func countMemberships(tx *gorm.DB, userID string) error {
	var groups int64
	if err := tx.Model(&models.GroupMember{}).Where("user_id = ?", userID).Count(&groups).Error; err != nil {
		return err
	}
	if groups >= models.MaxGroupsPerUser {
		return ErrMembershipLimit
	}
	return nil
}

// GetGroupDailyActivity returns every activity row of the group for one UTC day.
func (s *GormStore) GetGroupDailyActivity(ctx context.Context, groupID, date string) ([]models.GroupDailyActivity, error) {
	var rows []models.GroupDailyActivity
	err := s.DB.WithContext(ctx).
		Where("group_id = ? AND activity_date = ?", groupID, date).
		Find(&rows).Error
	return rows, err
}

// UpsertDailyActivity raises the user's mine count for date to mines. Counts
// never go down and never exceed MaxMinesPerDay.
func (s *GormStore) UpsertDailyActivity(ctx context.Context, groupID, userID, date string, mines int) (*models.GroupDailyActivity, error) {
	var row *models.GroupDailyActivity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = upsertActivity(tx, groupID, userID, date, func(int) int {
			return mines
		})
		return err
	})
	return row, err
}

func upsertActivity(tx *gorm.DB, groupID, userID, date string, next func(current int) int) (*models.GroupDailyActivity, error) {
	seed := models.GroupDailyActivity{
		ID:           uuid.NewString(),
		GroupID:      groupID,
		UserID:       userID,
		ActivityDate: date,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}

	var row models.GroupDailyActivity
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_id = ? AND user_id = ? AND activity_date = ?", groupID, userID, date).
		First(&row).Error; err != nil {
		return nil, translate(err)
	}

	mines := next(row.MinesToday)
	if mines > models.MaxMinesPerDay {
		mines = models.MaxMinesPerDay
	}
	if mines <= row.MinesToday {
		return &row, nil
	}

	row.MinesToday = mines
	row.IsActive = mines > 0
	if err := tx.Model(&row).Updates(map[string]interface{}{
		"mines_today": row.MinesToday,
		"is_active":   row.IsActive,
	}).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// GetClaim returns the claim for (group, user, date) or ErrNotFound.
func (s *GormStore) GetClaim(ctx context.Context, groupID, userID, date string) (*models.GroupClaim, error) {
	var claim models.GroupClaim
	if err := s.DB.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND claim_date = ?", groupID, userID, date).
		First(&claim).Error; err != nil {
		return nil, translate(err)
	}
	return &claim, nil
}

// InsertClaimIfAbsent writes the claim and credits its amount to the user's
// balance in one transaction. The unique (group, user, date) index makes
// exactly one of any number of concurrent attempts succeed; the others get
// ErrClaimExists.
func (s *GormStore) InsertClaimIfAbsent(ctx context.Context, claim *models.GroupClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(claim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimExists
		}
		return creditBalance(tx, claim.UserID, claim.Amount)
	})
}
