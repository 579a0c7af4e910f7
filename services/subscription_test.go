package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countSource struct {
	count atomic.Int64
	fail  atomic.Bool
}

func (c *countSource) CountPending(context.Context, string) (int64, error) {
	if c.fail.Load() {
		return 0, errors.New("store unavailable")
	}
	return c.count.Load(), nil
}

func receive(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	return 0
}

func TestPendingBonusWatcher_DeliversChangesUntilCancel(t *testing.T) {
	source := &countSource{}
	source.count.Store(2)
	clock := clockwork.NewFakeClockAt(testNow)
	watcher := NewPendingBonusWatcher(source, clock, time.Second)

	got := make(chan int64, 10)
	sub := watcher.Subscribe(context.Background(), "kai", func(n int64) { got <- n })

	assert.EqualValues(t, 2, receive(t, got))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// unchanged counts are not re-delivered
	clock.Advance(time.Second)
	source.count.Store(3)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	assert.EqualValues(t, 3, receive(t, got))

	sub.Cancel()
	sub.Cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.True(t, sub.Cancelled())

	source.count.Store(9)
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return len(got) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestPendingBonusWatcher_ReadFailureEndsSubscription(t *testing.T) {
	source := &countSource{}
	source.fail.Store(true)
	watcher := NewPendingBonusWatcher(source, clockwork.NewFakeClockAt(testNow), time.Second)

	delivered := atomic.Int32{}
	sub := watcher.Subscribe(context.Background(), "lee", func(int64) { delivered.Add(1) })

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription should end after a failed read")
	}
	assert.True(t, sub.Cancelled())
	assert.Zero(t, delivered.Load())
	sub.Cancel()
}

func TestSubscription_DiscardsAfterCancel(t *testing.T) {
	sub := &Subscription{cancel: func() {}, done: make(chan struct{})}
	calls := 0
	assert.True(t, sub.deliver(func(int64) { calls++ }, 1))
	sub.Cancel()
	assert.False(t, sub.deliver(func(int64) { calls++ }, 2))
	assert.Equal(t, 1, calls)
}

func TestSubscription_CancelFromCallback(t *testing.T) {
	sub := &Subscription{cancel: func() {}, done: make(chan struct{})}
	calls := 0

	returned := make(chan bool, 1)
	go func() {
		returned <- sub.deliver(func(int64) {
			calls++
			sub.Cancel()
		}, 1)
	}()
	select {
	case ok := <-returned:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel from inside the callback blocked")
	}

	assert.True(t, sub.Cancelled())
	assert.False(t, sub.deliver(func(int64) { calls++ }, 2))
	assert.Equal(t, 1, calls)
}

func TestSubscription_CancelDuringDeliveryStopsLaterOnes(t *testing.T) {
	sub := &Subscription{cancel: func() {}, done: make(chan struct{})}
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	first := make(chan bool, 1)
	go func() {
		first <- sub.deliver(func(int64) {
			calls.Add(1)
			close(entered)
			<-release
		}, 1)
	}()
	<-entered

	cancelled := make(chan struct{})
	go func() {
		sub.Cancel()
		close(cancelled)
	}()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel blocked on a running callback")
	}

	close(release)
	assert.True(t, <-first)
	assert.False(t, sub.deliver(func(int64) { calls.Add(1) }, 2))
	assert.Equal(t, int32(1), calls.Load())
}
func TestPendingBonusWatcher_StopsWithParentContext(t *testing.T) {
	source := &countSource{}
	watcher := NewPendingBonusWatcher(source, clockwork.NewFakeClockAt(testNow), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan int64, 1)
	sub := watcher.Subscribe(ctx, "max", func(n int64) { got <- n })
	assert.EqualValues(t, 0, receive(t, got))

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop with its parent context")
	}
}
