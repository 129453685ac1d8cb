package application

import (
	"context"
	"sync"
	"time"
)

// Watchdog defends against upstream calls that accept a request and never
// answer. It wakes on a fixed tick interval; once Begin() has been called,
// if its expiry has passed, it cancels the context it is guarding.
//
// One Watchdog is created per worker and reused across that worker's
// poll/process cycles via Begin/Stop, exactly as the worker-loop contract
// in the component design requires.
type Watchdog struct {
	tick    time.Duration
	expiry  time.Duration
	cancel  context.CancelFunc

	mu       sync.Mutex
	deadline time.Time
	armed    bool
	fired    bool

	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatchdog creates a Watchdog that wakes every tick and interrupts its
// guarded context if more than expiry has elapsed since the last Begin.
func NewWatchdog(tick, expiry time.Duration) *Watchdog {
	return &Watchdog{
		tick:   tick,
		expiry: expiry,
		now:    time.Now,
	}
}

// Guard derives a cancellable context from parent and starts the
// watchdog's background loop. Callers must call Stop when the guarded
// operation completes, successfully or not.
func (w *Watchdog) Guard(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	w.mu.Lock()
	w.cancel = cancel
	w.armed = false
	w.mu.Unlock()

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.fired = false

	go w.loop(ctx)

	return ctx
}

// Fired reports whether the most recent Guard'd context was canceled by the
// watchdog itself (an expiry), as opposed to the parent context or a normal
// Stop.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Begin arms the watchdog: from this point, expiry must elapse before the
// watchdog fires.
func (w *Watchdog) Begin() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = true
	w.deadline = w.now().Add(w.expiry)
}

// Stop disarms the watchdog and ends its background loop. Safe to call
// multiple times.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.armed = false
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
}

func (w *Watchdog) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			fire := w.armed && !w.now().Before(w.deadline)
			w.mu.Unlock()
			if fire {
				w.mu.Lock()
				cancel := w.cancel
				w.fired = true
				w.mu.Unlock()
				if cancel != nil {
					cancel()
				}
				return
			}
		}
	}
}
