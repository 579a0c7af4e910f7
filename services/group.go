package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"mining-reward-system/models"
	"mining-reward-system/store"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	BaseGroupReward  = 180.0
	MinMembersToEarn = 3
	MinActiveMembers = 2

	maxGroupNameLen  = 48
	maxCodeSlugLen   = 24
	codeSuffixLen    = 4
	codeAttemptLimit = 5
)

// GroupRewardSummary is today's pooled reward of one group as seen by one user.
type GroupRewardSummary struct {
	GroupID       string  `json:"group_id"`
	Date          string  `json:"date"`
	MemberCount   int     `json:"member_count"`
	ActiveMembers int     `json:"active_members"`
	TotalMines    int     `json:"total_mines"`
	MyMines       int     `json:"my_mines"`
	Eligible      bool    `json:"eligible"`
	GroupReward   float64 `json:"group_reward"`
	MyReward      float64 `json:"my_reward"`

	// Set by GroupService from the claim table.
	Claimed       bool     `json:"claimed"`
	ClaimedAmount *float64 `json:"claimed_amount,omitempty"`
}

// AggregateGroupActivity computes the pooled reward and userID's share from
// one day of activity rows. Rows of non-members are ignored and mine counts
// outside [0, MaxMinesPerDay] are clamped.
func AggregateGroupActivity(group models.SecurityGroup, members []models.GroupMember, activity []models.GroupDailyActivity, userID string) GroupRewardSummary {
	memberCount := group.MemberCount
	if memberCount <= 0 {
		memberCount = len(members)
	}

	isMember := make(map[string]bool, len(members))
	for _, m := range members {
		isMember[m.UserID] = true
	}

	mines := make(map[string]int, len(activity))
	for _, row := range activity {
		if !isMember[row.UserID] {
			continue
		}
		n := clampMines(group.ID, row)
		if n > mines[row.UserID] {
			mines[row.UserID] = n
		}
	}

	summary := GroupRewardSummary{
		GroupID:     group.ID,
		MemberCount: memberCount,
		MyMines:     mines[userID],
	}
	if len(activity) > 0 {
		summary.Date = activity[0].ActivityDate
	}
	for _, n := range mines {
		summary.TotalMines += n
		if n >= 1 {
			summary.ActiveMembers++
		}
	}

	summary.Eligible = memberCount >= MinMembersToEarn && summary.ActiveMembers >= MinActiveMembers
	if !summary.Eligible {
		return summary
	}

	reward := decimal.NewFromFloat(BaseGroupReward).
		Mul(decimal.NewFromInt(int64(summary.ActiveMembers))).
		Div(decimal.NewFromInt(int64(memberCount)))
	reward = decimal.Min(decimal.Max(reward, decimal.Zero), decimal.NewFromFloat(BaseGroupReward)).Truncate(2)
	summary.GroupReward = reward.InexactFloat64()

	if summary.TotalMines > 0 && summary.MyMines > 0 {
		summary.MyReward = reward.
			Mul(decimal.NewFromInt(int64(summary.MyMines))).
			Div(decimal.NewFromInt(int64(summary.TotalMines))).
			Truncate(2).
			InexactFloat64()
	}
	return summary
}

func clampMines(groupID string, row models.GroupDailyActivity) int {
	n := row.MinesToday
	if n >= 0 && n <= models.MaxMinesPerDay {
		return n
	}
	zap.L().Warn("mines_today out of range, clamping",
		zap.String("group_id", groupID),
		zap.String("user_id", row.UserID),
		zap.String("date", row.ActivityDate),
		zap.Int("mines_today", n),
	)
	if n < 0 {
		return 0
	}
	return models.MaxMinesPerDay
}

// GroupStore is the persistence the group operations need.
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*models.SecurityGroup, error)
	GetGroupByCode(ctx context.Context, code string) (*models.SecurityGroup, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	ListUserGroups(ctx context.Context, userID string) ([]models.SecurityGroup, error)
	CreateGroupWithOwner(ctx context.Context, group *models.SecurityGroup, joinedAt time.Time) error
	AddGroupMember(ctx context.Context, groupID, userID string, joinedAt time.Time) (*models.SecurityGroup, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	GetGroupDailyActivity(ctx context.Context, groupID, date string) ([]models.GroupDailyActivity, error)
	UpsertDailyActivity(ctx context.Context, groupID, userID, date string, mines int) (*models.GroupDailyActivity, error)
	GetClaim(ctx context.Context, groupID, userID, date string) (*models.GroupClaim, error)
	InsertClaimIfAbsent(ctx context.Context, claim *models.GroupClaim) error
}

type GroupService struct {
	store     GroupStore
	clock     clockwork.Clock
	publisher Publisher
}

func NewGroupService(store GroupStore, clock clockwork.Clock, publisher Publisher) *GroupService {
	return &GroupService{store: store, clock: clock, publisher: publisher}
}

// CreateGroup creates a group owned by userID. The join code is the slugged
// name plus a short random suffix.
func (s *GroupService) CreateGroup(ctx context.Context, userID, name string) (*models.SecurityGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "group name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameLen {
		return nil, invalid("name", "group name is too long")
	}

	now := s.clock.Now().UTC()
	for attempt := 0; attempt < codeAttemptLimit; attempt++ {
		group := &models.SecurityGroup{
			ID:        uuid.NewString(),
			Name:      name,
			Code:      groupCode(name),
			CreatedBy: userID,
		}
		err := s.store.CreateGroupWithOwner(ctx, group, now)
		switch {
		case err == nil:
			zap.L().Info("security group created",
				zap.String("group_id", group.ID),
				zap.String("code", group.Code),
				zap.String("user_id", userID),
			)
			return group, nil
		case errors.Is(err, store.ErrCodeTaken):
			continue
		case errors.Is(err, store.ErrMembershipLimit):
			return nil, conflict("create group", "user already belongs to the maximum number of groups")
		default:
			return nil, err
		}
	}
	return nil, conflict("create group", "could not allocate a unique group code")
}

func groupCode(name string) string {
	base := slug.Make(name)
	if base == "" {
		base = "group"
	}
	if len(base) > maxCodeSlugLen {
		base = strings.Trim(base[:maxCodeSlugLen], "-")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:codeSuffixLen]
	return base + "-" + suffix
}

// JoinGroup adds userID to the group identified by its join code.
func (s *GroupService) JoinGroup(ctx context.Context, userID, code string) (*models.SecurityGroup, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, invalid("code", "group code is required")
	}

	group, err := s.store.GetGroupByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("group", code)
	}
	if err != nil {
		return nil, err
	}

	joined, err := s.store.AddGroupMember(ctx, group.ID, userID, s.clock.Now().UTC())
	switch {
	case err == nil:
		return joined, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound("group", code)
	case errors.Is(err, store.ErrGroupFull):
		return nil, conflict("join group", "group is full")
	case errors.Is(err, store.ErrAlreadyMember):
		return nil, conflict("join group", "already a member")
	case errors.Is(err, store.ErrMembershipLimit):
		return nil, conflict("join group", "user already belongs to the maximum number of groups")
	}
	return nil, err
}

func (s *GroupService) LeaveGroup(ctx context.Context, userID, groupID string) error {
	err := s.store.RemoveGroupMember(ctx, groupID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("membership", groupID)
	}
	return err
}

func (s *GroupService) ListUserGroups(ctx context.Context, userID string) ([]models.SecurityGroup, error) {
	return s.store.ListUserGroups(ctx, userID)
}

// ReportDailyMines raises userID's mine count for today (UTC) to mines. An
// empty date means today; any other day is rejected since only today's
// reward can still be claimed.
func (s *GroupService) ReportDailyMines(ctx context.Context, groupID, userID, date string, mines int) (*models.GroupDailyActivity, error) {
	if mines < 0 || mines > models.MaxMinesPerDay {
		return nil, invalid("mines_today", "must be between 0 and 4")
	}
	today := models.ActivityDate(s.clock.Now())
	if date == "" {
		date = today
	}
	if _, err := time.Parse(models.ActivityDateLayout, date); err != nil {
		return nil, invalid("date", "expected YYYY-MM-DD")
	}
	if date != today {
		return nil, invalid("date", "only today ("+today+") can be reported")
	}
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.store.UpsertDailyActivity(ctx, groupID, userID, date, mines)
}

// GetGroupSummary aggregates the group's activity for date (UTC today when empty).
func (s *GroupService) GetGroupSummary(ctx context.Context, groupID, userID, date string) (*GroupRewardSummary, error) {
	if date == "" {
		date = models.ActivityDate(s.clock.Now())
	} else if _, err := time.Parse(models.ActivityDateLayout, date); err != nil {
		return nil, invalid("date", "expected YYYY-MM-DD")
	}

	summary, err := s.summarize(ctx, groupID, userID, date)
	if err != nil {
		return nil, err
	}

	claim, err := s.store.GetClaim(ctx, groupID, userID, date)
	switch {
	case err == nil:
		summary.Claimed = true
		summary.ClaimedAmount = &claim.Amount
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return summary, nil
}

// ClaimGroupReward pays userID's share of today's group reward. A day can be
// claimed once; the amount is fixed at claim time.
func (s *GroupService) ClaimGroupReward(ctx context.Context, groupID, userID string) (*models.GroupClaim, error) {
	now := s.clock.Now().UTC()
	date := models.ActivityDate(now)

	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	summary, err := s.summarize(ctx, groupID, userID, date)
	if err != nil {
		return nil, err
	}
	if !summary.Eligible {
		return nil, conflict("claim group reward", "group is not eligible today")
	}
	if summary.MyReward <= 0 {
		return nil, conflict("claim group reward", "nothing to claim")
	}

	claim := &models.GroupClaim{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		ClaimDate: date,
		Amount:    summary.MyReward,
		ClaimedAt: now,
	}
	if err := s.store.InsertClaimIfAbsent(ctx, claim); err != nil {
		if errors.Is(err, store.ErrClaimExists) {
			return nil, conflict("claim group reward", "already claimed today")
		}
		return nil, err
	}

	attrs := map[string]string{"group_id": groupID, "date": date}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		zap.L().Warn("group lookup for claim event failed",
			zap.String("group_id", groupID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	} else {
		attrs["group_name"] = group.Name
	}
	publish(ctx, s.publisher, Event{
		Type:       models.EventGroupRewardClaimed,
		UserID:     userID,
		OccurredAt: now,
		Amount:     claim.Amount,
		Attrs:      attrs,
	})
	return claim, nil
}

func (s *GroupService) summarize(ctx context.Context, groupID, userID, date string) (*GroupRewardSummary, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("group", groupID)
	}
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	activity, err := s.store.GetGroupDailyActivity(ctx, groupID, date)
	if err != nil {
		return nil, err
	}

	summary := AggregateGroupActivity(*group, members, activity, userID)
	summary.Date = date
	return &summary, nil
}

func (s *GroupService) requireMember(ctx context.Context, groupID, userID string) error {
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID == userID {
			return nil
		}
	}
	if _, err := s.store.GetGroup(ctx, groupID); errors.Is(err, store.ErrNotFound) {
		return notFound("group", groupID)
	}
	return conflict("group activity", "user is not a member of this group")
}
