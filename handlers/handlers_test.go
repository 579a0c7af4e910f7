package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mining-reward-system/models"
	"mining-reward-system/services"
	"mining-reward-system/store"
	"mining-reward-system/store/storetest"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	app    *fiber.App
	store  *store.GormStore
	burns  *services.BurnService
	groups *services.GroupService
	clock  *clockwork.FakeClock
}

func newEnv(t *testing.T, source services.SnapshotSource) *testEnv {
	t.Helper()
	st := store.New(storetest.NewDB(t))
	clock := clockwork.NewFakeClockAt(now)
	pub := services.MultiPublisher{services.NewOutboxPublisher(st, language.English), services.LogPublisher{}}

	if source == nil {
		source = st
	}
	burns := services.NewBurnService(st, clock, pub, 0.1)
	groups := services.NewGroupService(st, clock, pub)
	bonuses := services.NewBonusService(st, clock, pub, rand.New(rand.NewSource(1)))
	board := services.NewLeaderboard(source, nil, clock, 10)
	watcher := services.NewPendingBonusWatcher(bonuses, clock, time.Second)

	app := fiber.New()
	SetupHealthRoutes(app, st)
	SetupBurnRoutes(app, burns)
	SetupGroupRoutes(app, groups)
	SetupLeaderboardRoutes(app, board)
	SetupBonusRoutes(app, bonuses, watcher, nil)
	SetupEventRoutes(app, st, clock)

	return &testEnv{app: app, store: st, burns: burns, groups: groups, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, target, userID, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestBurnStatusRoute(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()

	code, _ := env.do(t, http.MethodGet, "/user/burn-status", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/user/burn-status", "nobody", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	_, err := env.burns.RecordMiningSession(ctx, models.MiningSession{ID: "s1", UserID: "ada", Amount: 3, MinedAt: now.Add(-30 * time.Hour)})
	require.NoError(t, err)

	code, body := env.do(t, http.MethodGet, "/user/burn-status", "ada", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, true, body["is_at_risk"])
	assert.InDelta(t, 18, body["hours_until_burn"], 1e-9)
	assert.EqualValues(t, 3, body["sessions_until_next_recovery"])
}

func TestGroupRoutes(t *testing.T) {
	env := newEnv(t, nil)

	code, body := env.do(t, http.MethodPost, "/groups", "a", `{"name":""}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])

	code, _ = env.do(t, http.MethodPost, "/groups", "a", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, group := env.do(t, http.MethodPost, "/groups", "a", `{"name":"Rock Crew"}`)
	require.Equal(t, fiber.StatusCreated, code)
	groupID := group["id"].(string)
	groupCode := group["code"].(string)

	code, _ = env.do(t, http.MethodPost, "/groups/join", "b", `{"code":"missing"}`)
	assert.Equal(t, fiber.StatusNotFound, code)

	for _, u := range []string{"b", "c"} {
		code, _ = env.do(t, http.MethodPost, "/groups/join", u, `{"code":"`+groupCode+`"}`)
		require.Equal(t, fiber.StatusOK, code)
	}
	code, _ = env.do(t, http.MethodPost, "/groups/join", "b", `{"code":"`+groupCode+`"}`)
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = env.do(t, http.MethodPut, "/groups/"+groupID+"/activity", "a", `{"date":"2026-03-10","mines_today":7}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodPut, "/groups/"+groupID+"/activity", "a", `{"date":"2026-03-10","mines_today":2}`)
	require.Equal(t, fiber.StatusOK, code)
	code, _ = env.do(t, http.MethodPut, "/groups/"+groupID+"/activity", "b", `{"date":"2026-03-10","mines_today":1}`)
	require.Equal(t, fiber.StatusOK, code)

	code, summary := env.do(t, http.MethodGet, "/groups/"+groupID+"/summary", "a", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 120, summary["group_reward"])
	assert.EqualValues(t, 80, summary["my_reward"])
	assert.Equal(t, true, summary["eligible"])

	code, claim := env.do(t, http.MethodPost, "/groups/"+groupID+"/claim", "a", "")
	require.Equal(t, fiber.StatusCreated, code)
	assert.EqualValues(t, 80, claim["amount"])

	code, _ = env.do(t, http.MethodPost, "/groups/"+groupID+"/claim", "a", "")
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = env.do(t, http.MethodGet, "/groups/unknown/summary", "a", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	code, list := env.do(t, http.MethodGet, "/user/groups", "c", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, list["groups"], 1)

	code, _ = env.do(t, http.MethodDelete, "/groups/"+groupID+"/membership", "c", "")
	assert.Equal(t, fiber.StatusNoContent, code)
	code, _ = env.do(t, http.MethodDelete, "/groups/"+groupID+"/membership", "c", "")
	assert.Equal(t, fiber.StatusNotFound, code)
}

type brokenSource struct{}

func (brokenSource) GetLeaderboardSnapshot(context.Context, *time.Time, int) ([]models.LeaderboardEntry, error) {
	return nil, errors.New("connection refused")
}

func TestLeaderboardRoute(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()

	for i, u := range []string{"x", "y"} {
		_, err := env.burns.RecordMiningSession(ctx, models.MiningSession{
			ID: "s-" + u, UserID: u, Amount: float64(10 * (i + 1)), MinedAt: now,
		})
		require.NoError(t, err)
	}

	code, body := env.do(t, http.MethodGet, "/leaderboard", "", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "all", body["period"])
	entries := body["entries"].([]interface{})
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "y", first["user_id"])
	assert.EqualValues(t, 1, first["rank"])

	code, _ = env.do(t, http.MethodGet, "/leaderboard?period=daily", "", "")
	assert.Equal(t, fiber.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/leaderboard?period=yearly", "", "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	broken := newEnv(t, brokenSource{})
	code, body = broken.do(t, http.MethodGet, "/leaderboard", "", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.NotContains(t, body["error"], "connection refused")
}

func TestBonusTaskRoutes(t *testing.T) {
	env := newEnv(t, nil)

	code, _ := env.do(t, http.MethodPost, "/user/bonus-tasks", "eve", `{"task_type":"lottery"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, task := env.do(t, http.MethodPost, "/user/bonus-tasks", "eve", `{"task_type":"watch_ad"}`)
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, "pending", task["status"])
	taskID := task["id"].(string)

	code, pending := env.do(t, http.MethodGet, "/user/bonus-tasks/pending", "eve", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 1, pending["count"])

	code, _ = env.do(t, http.MethodPost, "/user/bonus-tasks/"+taskID+"/claim", "eve", "")
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = env.do(t, http.MethodPost, "/user/bonus-tasks/"+taskID+"/complete", "mallory", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	code, done := env.do(t, http.MethodPost, "/user/bonus-tasks/"+taskID+"/complete", "eve", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "completed", done["status"])

	code, claimed := env.do(t, http.MethodPost, "/user/bonus-tasks/"+taskID+"/claim", "eve", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "claimed", claimed["status"])

	code, list := env.do(t, http.MethodGet, "/user/bonus-tasks", "eve", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, list["tasks"], 1)

	code, catalog := env.do(t, http.MethodGet, "/user/bonus-tasks/catalog", "eve", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, catalog["templates"], 5)

	code, _ = env.do(t, http.MethodGet, "/user/bonus-tasks/pending/stream", "", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestEventFeedRoutes(t *testing.T) {
	env := newEnv(t, nil)

	code, task := env.do(t, http.MethodPost, "/user/bonus-tasks", "eve", `{"task_type":"daily_check_in"}`)
	require.Equal(t, fiber.StatusCreated, code)
	code, _ = env.do(t, http.MethodPost, "/user/bonus-tasks/"+task["id"].(string)+"/complete", "eve", "")
	require.Equal(t, fiber.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/internal/events?limit=0", "", "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body := env.do(t, http.MethodGet, "/internal/events", "", "")
	require.Equal(t, fiber.StatusOK, code)
	events := body["events"].([]interface{})
	require.Len(t, events, 1)
	event := events[0].(map[string]interface{})
	assert.Equal(t, "bonus.task_completed", event["type"])

	code, ack := env.do(t, http.MethodPost, "/internal/events/ack", "", `{"ids":["`+event["id"].(string)+`"]}`)
	require.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 1, ack["acknowledged"])

	code, body = env.do(t, http.MethodGet, "/internal/events", "", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Empty(t, body["events"])
}

func TestHealthRoute(t *testing.T) {
	env := newEnv(t, nil)
	code, body := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&services.ValidationError{Field: "f", Reason: "bad"}, fiber.StatusBadRequest},
		{&services.NotFoundError{Entity: "group", ID: "1"}, fiber.StatusNotFound},
		{&services.StateConflictError{Op: "claim", Reason: "twice"}, fiber.StatusConflict},
		{&services.TransientFetchError{Source: "x", Err: errors.New("boom")}, fiber.StatusServiceUnavailable},
		{errors.New("pq: deadlock detected"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		app := fiber.New()
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error { return respondError(c, err) })

		resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, testErr)
		assert.Equal(t, tc.want, resp.StatusCode, "%T", tc.err)

		raw, _ := io.ReadAll(resp.Body)
		if tc.want == fiber.StatusInternalServerError {
			assert.NotContains(t, string(raw), "deadlock")
		}
	}
}
