package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mining-reward-system/models"
	"mining-reward-system/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func members(ids ...string) []models.GroupMember {
	out := make([]models.GroupMember, len(ids))
	for i, id := range ids {
		out[i] = models.GroupMember{GroupID: "g", UserID: id}
	}
	return out
}

func activity(mines map[string]int) []models.GroupDailyActivity {
	var out []models.GroupDailyActivity
	for user, n := range mines {
		out = append(out, models.GroupDailyActivity{GroupID: "g", UserID: user, ActivityDate: "2026-03-10", MinesToday: n, IsActive: n > 0})
	}
	return out
}

func TestAggregateGroupActivity_ThreeMembersTwoActive(t *testing.T) {
	group := models.SecurityGroup{ID: "g", MemberCount: 3}
	rows := activity(map[string]int{"a": 2, "b": 1, "c": 0})

	summary := AggregateGroupActivity(group, members("a", "b", "c"), rows, "a")
	assert.True(t, summary.Eligible)
	assert.Equal(t, 2, summary.ActiveMembers)
	assert.Equal(t, 3, summary.TotalMines)
	assert.Equal(t, 120.0, summary.GroupReward)
	assert.Equal(t, 80.0, summary.MyReward)
	assert.InDelta(t, summary.GroupReward*2/3, summary.MyReward, 0.01)
}

func TestAggregateGroupActivity_IneligibleGroupsEarnNothing(t *testing.T) {
	small := models.SecurityGroup{ID: "g", MemberCount: 2}
	summary := AggregateGroupActivity(small, members("a", "b"), activity(map[string]int{"a": 4, "b": 4}), "a")
	assert.False(t, summary.Eligible)
	assert.Zero(t, summary.GroupReward)
	assert.Zero(t, summary.MyReward)

	quiet := models.SecurityGroup{ID: "g", MemberCount: 5}
	summary = AggregateGroupActivity(quiet, members("a", "b", "c", "d", "e"), activity(map[string]int{"a": 4}), "a")
	assert.False(t, summary.Eligible)
	assert.Zero(t, summary.GroupReward)
	assert.Equal(t, 4, summary.TotalMines)
}

func TestAggregateGroupActivity_RewardMonotonicAndBounded(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	group := models.SecurityGroup{ID: "g", MemberCount: 5}

	previous := 0.0
	for active := 0; active <= 5; active++ {
		mines := map[string]int{}
		for i := 0; i < active; i++ {
			mines[ids[i]] = 1
		}
		summary := AggregateGroupActivity(group, members(ids...), activity(mines), "a")
		assert.GreaterOrEqual(t, summary.GroupReward, previous)
		assert.LessOrEqual(t, summary.GroupReward, BaseGroupReward)
		previous = summary.GroupReward
	}
	assert.Equal(t, BaseGroupReward, previous)
}

func TestAggregateGroupActivity_SharesNeverExceedPool(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	group := models.SecurityGroup{ID: "g", MemberCount: 5}
	patterns := []map[string]int{
		{"a": 1, "b": 1, "c": 1},
		{"a": 3, "b": 2, "c": 1, "d": 4},
		{"a": 4, "b": 4, "c": 4, "d": 4, "e": 4},
		{"a": 1, "b": 4, "c": 2, "d": 2, "e": 3},
	}
	for _, mines := range patterns {
		total := 0.0
		var pool float64
		for _, id := range ids {
			summary := AggregateGroupActivity(group, members(ids...), activity(mines), id)
			pool = summary.GroupReward
			total += summary.MyReward
		}
		assert.LessOrEqual(t, total, pool+1e-9)
	}
}

func TestAggregateGroupActivity_ClampsAndIgnoresNonMembers(t *testing.T) {
	group := models.SecurityGroup{ID: "g", MemberCount: 3}
	rows := activity(map[string]int{"a": 9, "b": -2, "c": 1, "stranger": 4})

	summary := AggregateGroupActivity(group, members("a", "b", "c"), rows, "a")
	assert.Equal(t, 5, summary.TotalMines)
	assert.Equal(t, 4, summary.MyMines)
	assert.Equal(t, 2, summary.ActiveMembers)
}

func TestGroupService_CreateJoinAndLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewGroupService(f.store, f.clock, f.publisher)

	_, err := svc.CreateGroup(ctx, "owner", "   ")
	assert.True(t, IsValidation(err))

	group, err := svc.CreateGroup(ctx, "owner", "Déjà Vu Miners")
	require.NoError(t, err)
	assert.Regexp(t, `^deja-vu-miners-[0-9a-f]{4}$`, group.Code)
	assert.Equal(t, 1, group.MemberCount)

	_, err = svc.JoinGroup(ctx, "friend", "no-such-code")
	assert.True(t, IsNotFound(err))

	joined, err := svc.JoinGroup(ctx, "friend", "  "+group.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	_, err = svc.JoinGroup(ctx, "friend", group.Code)
	assert.True(t, IsStateConflict(err))

	for _, u := range []string{"c", "d", "e"} {
		_, err = svc.JoinGroup(ctx, u, group.Code)
		require.NoError(t, err)
	}
	_, err = svc.JoinGroup(ctx, "late", group.Code)
	assert.True(t, IsStateConflict(err))

	groups, err := svc.ListUserGroups(ctx, "friend")
	require.NoError(t, err)
	require.Len(t, groups, 1)

	require.NoError(t, svc.LeaveGroup(ctx, "friend", group.ID))
	assert.True(t, IsNotFound(svc.LeaveGroup(ctx, "friend", group.ID)))
}

func TestGroupService_CreateGroupMembershipLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewGroupService(f.store, f.clock, f.publisher)

	for i := 0; i < models.MaxGroupsPerUser; i++ {
		_, err := svc.CreateGroup(ctx, "busy", "crew")
		require.NoError(t, err)
	}
	_, err := svc.CreateGroup(ctx, "busy", "crew")
	assert.True(t, IsStateConflict(err))
}

func TestGroupService_ClaimGroupReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewGroupService(f.store, f.clock, f.publisher)

	group, err := svc.CreateGroup(ctx, "a", "Triad")
	require.NoError(t, err)
	for _, u := range []string{"b", "c"} {
		_, err = svc.JoinGroup(ctx, u, group.Code)
		require.NoError(t, err)
	}

	f.mine(t, "a")
	_, err = svc.ClaimGroupReward(ctx, group.ID, "a")
	assert.True(t, IsStateConflict(err), "one active member is not enough")

	f.mine(t, "a")
	f.mine(t, "b")

	_, err = svc.ReportDailyMines(ctx, group.ID, "outsider", "2026-03-10", 2)
	assert.True(t, IsStateConflict(err))

	summary, err := svc.GetGroupSummary(ctx, group.ID, "a", "")
	require.NoError(t, err)
	assert.Equal(t, 120.0, summary.GroupReward)
	assert.Equal(t, 80.0, summary.MyReward)
	assert.False(t, summary.Claimed)

	_, err = svc.ClaimGroupReward(ctx, group.ID, "c")
	assert.True(t, IsStateConflict(err), "inactive member has nothing to claim")

	claim, err := svc.ClaimGroupReward(ctx, group.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 80.0, claim.Amount)

	_, err = svc.ClaimGroupReward(ctx, group.ID, "a")
	assert.True(t, IsStateConflict(err))

	// a late mine changes the pool but not the issued claim
	f.mine(t, "c")
	summary, err = svc.GetGroupSummary(ctx, group.ID, "a", "")
	require.NoError(t, err)
	assert.Equal(t, 180.0, summary.GroupReward)
	assert.True(t, summary.Claimed)
	require.NotNil(t, summary.ClaimedAmount)
	assert.Equal(t, 80.0, *summary.ClaimedAmount)

	profile, err := f.store.GetProfile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 80.0, profile.Balance)
	require.Len(t, f.publisher.ofType(models.EventGroupRewardClaimed), 1)
	assert.Equal(t, "Triad", f.publisher.ofType(models.EventGroupRewardClaimed)[0].Attrs["group_name"])
}

func TestGroupService_ConcurrentClaimsPayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewGroupService(f.store, f.clock, f.publisher)

	group, err := svc.CreateGroup(ctx, "a", "Quad")
	require.NoError(t, err)
	for _, u := range []string{"b", "c"} {
		_, err = svc.JoinGroup(ctx, u, group.Code)
		require.NoError(t, err)
	}
	for _, u := range []string{"a", "b"} {
		f.mine(t, u)
	}

	var wg sync.WaitGroup
	results := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ClaimGroupReward(ctx, group.ID, "b")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, IsStateConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)

	profile, err := f.store.GetProfile(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 60.0, profile.Balance)
}

func TestGroupService_ReportDailyMinesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewGroupService(f.store, f.clock, f.publisher)

	group, err := svc.CreateGroup(ctx, "a", "Solo")
	require.NoError(t, err)

	_, err = svc.ReportDailyMines(ctx, group.ID, "a", "2026-03-10", 5)
	assert.True(t, IsValidation(err))
	_, err = svc.ReportDailyMines(ctx, group.ID, "a", "10/03/2026", 2)
	assert.True(t, IsValidation(err))
	_, err = svc.ReportDailyMines(ctx, group.ID, "a", "2026-03-11", 2)
	assert.True(t, IsValidation(err), "future day")
	_, err = svc.ReportDailyMines(ctx, group.ID, "a", "2026-03-09", 2)
	assert.True(t, IsValidation(err), "past day")

	rows, err := f.store.GetGroupDailyActivity(ctx, group.ID, "2026-03-11")
	require.NoError(t, err)
	assert.Empty(t, rows)

	row, err := svc.ReportDailyMines(ctx, group.ID, "a", "2026-03-10", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, row.MinesToday)

	row, err = svc.ReportDailyMines(ctx, group.ID, "a", "", 4)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", row.ActivityDate)
	assert.Equal(t, 4, row.MinesToday)

	_, err = svc.GetGroupSummary(ctx, "missing", "a", "")
	assert.True(t, IsNotFound(err))
	_, err = svc.GetGroupSummary(ctx, group.ID, "a", "yesterday")
	assert.True(t, IsValidation(err))
}

// flakyGroupReadStore fails group reads once a claim has been written.
type flakyGroupReadStore struct {
	*store.GormStore
	claimed bool
}

func (s *flakyGroupReadStore) InsertClaimIfAbsent(ctx context.Context, claim *models.GroupClaim) error {
	err := s.GormStore.InsertClaimIfAbsent(ctx, claim)
	s.claimed = err == nil
	return err
}

func (s *flakyGroupReadStore) GetGroup(ctx context.Context, groupID string) (*models.SecurityGroup, error) {
	if s.claimed {
		return nil, errors.New("connection reset by peer")
	}
	return s.GormStore.GetGroup(ctx, groupID)
}

func TestGroupService_ClaimEventSurvivesGroupReadFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyGroupReadStore{GormStore: f.store}
	svc := NewGroupService(flaky, f.clock, f.publisher)

	group, err := svc.CreateGroup(ctx, "a", "Relay")
	require.NoError(t, err)
	for _, u := range []string{"b", "c"} {
		_, err = svc.JoinGroup(ctx, u, group.Code)
		require.NoError(t, err)
	}
	f.mine(t, "a")
	f.mine(t, "b")

	claim, err := svc.ClaimGroupReward(ctx, group.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 60.0, claim.Amount)

	events := f.publisher.ofType(models.EventGroupRewardClaimed)
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Attrs, "group_name")
	assert.Equal(t, group.ID, events[0].Attrs["group_id"])
	assert.Equal(t, 1, logs.FilterMessage("group lookup for claim event failed").Len())
}
