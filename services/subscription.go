package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultPendingPollInterval = 5 * time.Second

// PendingCounter reports how many bonus tasks a user can still act on.
type PendingCounter interface {
	CountPending(ctx context.Context, userID string) (int64, error)
}

// Subscription is a handle to a running listener. Cancel may be called any
// number of times, from any goroutine, including from inside the delivery
// callback. Once Cancel returns no new delivery starts; a Cancel from another
// goroutine waits for a delivery that has passed its check but not yet
// entered the callback.
type Subscription struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}

	mu         sync.Mutex // held across the cancelled check and the callback
	inCallback atomic.Bool
}

func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
	if s.inCallback.Load() {
		// the callback is running and may be the caller; mu is held
		return
	}
	// wait out a delivery that passed its check before the flag was set
	s.mu.Lock()
	defer s.mu.Unlock()
}

// Cancelled reports whether Cancel was called or the listener ended on its own.
func (s *Subscription) Cancelled() bool {
	return s.cancelled.Load()
}

// Done is closed when the listener goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// deliver drops values that arrive after cancellation.
func (s *Subscription) deliver(fn func(int64), count int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled.Load() {
		return false
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn(count)
	return true
}

// PendingBonusWatcher polls a user's pending bonus count and pushes changes
// to subscribers.
type PendingBonusWatcher struct {
	counter  PendingCounter
	clock    clockwork.Clock
	interval time.Duration
}

func NewPendingBonusWatcher(counter PendingCounter, clock clockwork.Clock, interval time.Duration) *PendingBonusWatcher {
	if interval <= 0 {
		interval = DefaultPendingPollInterval
	}
	return &PendingBonusWatcher{counter: counter, clock: clock, interval: interval}
}

// Subscribe starts a listener that calls onCount with the current count and
// again whenever it changes. The listener stops when ctx ends, when the
// returned handle is cancelled, or after a failed read, which is logged.
func (w *PendingBonusWatcher) Subscribe(ctx context.Context, userID string, onCount func(count int64)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer sub.Cancel()

		ticker := w.clock.NewTicker(w.interval)
		defer ticker.Stop()

		last := int64(-1)
		poll := func() bool {
			count, err := w.counter.CountPending(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					zap.L().Warn("pending bonus subscription ended after read failure",
						zap.String("user_id", userID),
						zap.Error(err),
					)
				}
				return false
			}
			if count == last {
				return true
			}
			last = count
			return sub.deliver(onCount, count)
		}

		if !poll() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !poll() {
					return
				}
			}
		}
	}()

	return sub
}
