package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mining-reward-system/models"
	"mining-reward-system/store"
	"mining-reward-system/store/storetest"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t models.EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *store.GormStore
	clock     *clockwork.FakeClock
	publisher *recordingPublisher
	sessions  int
}

// mine ingests a zero-amount session for userID at the current time, which
// counts one mine in every group the user belongs to.
func (f *fixture) mine(t *testing.T, userID string) {
	t.Helper()
	f.sessions++
	burns := NewBurnService(f.store, f.clock, f.publisher, 0.1)
	_, err := burns.RecordMiningSession(context.Background(), models.MiningSession{
		ID:      fmt.Sprintf("mine-%d", f.sessions),
		UserID:  userID,
		MinedAt: f.clock.Now(),
	})
	require.NoError(t, err)
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		store:     store.New(storetest.NewDB(t)),
		clock:     clockwork.NewFakeClockAt(testNow),
		publisher: &recordingPublisher{},
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
