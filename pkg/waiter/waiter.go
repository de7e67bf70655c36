// Package waiter tracks the single outstanding reply window per user. Arming
// a new waiter always replaces the previous one, so a user can never have two
// live timers racing each other.
package waiter

import (
	"sync"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// TimeoutFunc is invoked when a waiter's deadline lapses without delivery.
// It runs on the waiter's own goroutine.
type TimeoutFunc func(userID string, kind proto.WaiterKind)

type waiter struct {
	kind     proto.WaiterKind
	deadline time.Time
	timer    *time.Timer
	cancel   chan struct{}
}

// Registry holds at most one live waiter per user.
type Registry struct {
	mu        sync.Mutex
	waiters   map[string]*waiter
	onTimeout TimeoutFunc
	logger    *logx.Logger
}

// NewRegistry creates a waiter registry. onTimeout must be non-nil.
func NewRegistry(onTimeout TimeoutFunc) *Registry {
	return &Registry{
		waiters:   make(map[string]*waiter),
		onTimeout: onTimeout,
		logger:    logx.NewLogger("waiter"),
	}
}

// Arm starts a reply window for userID, replacing any existing one. Deadlines
// in the past fire immediately.
func (r *Registry) Arm(userID string, kind proto.WaiterKind, deadline time.Time) {
	r.mu.Lock()

	if existing, ok := r.waiters[userID]; ok {
		stopWaiter(existing)
	}

	w := &waiter{
		kind:     kind,
		deadline: deadline,
		cancel:   make(chan struct{}),
	}
	w.timer = time.NewTimer(time.Until(deadline))
	r.waiters[userID] = w
	r.mu.Unlock()

	r.logger.Debug("armed %s waiter for %s until %s", kind, userID, deadline.Format(time.RFC3339))

	go func() {
		select {
		case <-w.timer.C:
			// Only fire if this waiter is still the current one; a
			// concurrent Deliver or re-Arm wins the race.
			r.mu.Lock()
			current, ok := r.waiters[userID]
			if !ok || current != w {
				r.mu.Unlock()
				return
			}
			delete(r.waiters, userID)
			r.mu.Unlock()

			r.logger.Debug("waiter %s for %s timed out", kind, userID)
			r.onTimeout(userID, kind)
		case <-w.cancel:
		}
	}()
}

// Deliver consumes the live waiter for userID, reporting its kind. Returns
// false when no waiter was armed.
func (r *Registry) Deliver(userID string) (proto.WaiterKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[userID]
	if !ok {
		return proto.WaiterNone, false
	}
	delete(r.waiters, userID)
	stopWaiter(w)
	return w.kind, true
}

// Cancel discards the live waiter for userID without delivering it.
func (r *Registry) Cancel(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[userID]
	if !ok {
		return false
	}
	delete(r.waiters, userID)
	stopWaiter(w)
	return true
}

// Active reports the live waiter for userID, if any.
func (r *Registry) Active(userID string) (proto.WaiterKind, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[userID]
	if !ok {
		return proto.WaiterNone, time.Time{}, false
	}
	return w.kind, w.deadline, true
}

// Count reports how many waiters are currently armed.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// Shutdown cancels all live waiters.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, w := range r.waiters {
		stopWaiter(w)
		delete(r.waiters, userID)
	}
}

func stopWaiter(w *waiter) {
	w.timer.Stop()
	close(w.cancel)
}
