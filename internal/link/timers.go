package link

import (
	"sync"
	"time"
)

// TimerHandle identifies a scheduled timer within a TimerRegistry.
type TimerHandle uint64

// TimerRegistry tracks every timer started during a connection attempt or
// open session so teardown can cancel them as a set. A timer that fires
// removes itself before its callback runs.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[TimerHandle]*time.Timer
	next   TimerHandle
}

// NewTimerRegistry returns an empty registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[TimerHandle]*time.Timer)}
}

// Schedule registers a one-shot timer that runs fn after delay.
func (r *TimerRegistry) Schedule(delay time.Duration, fn func()) TimerHandle {
	r.mu.Lock()
	r.next++
	id := r.next
	t := time.AfterFunc(delay, func() {
		r.remove(id)
		fn()
	})
	r.timers[id] = t
	r.mu.Unlock()
	return id
}

// Cancel stops the timer for h if it is still pending.
func (r *TimerRegistry) Cancel(h TimerHandle) {
	r.mu.Lock()
	t, ok := r.timers[h]
	if ok {
		delete(r.timers, h)
	}
	r.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// CancelAll stops every tracked timer and empties the registry.
func (r *TimerRegistry) CancelAll() {
	r.mu.Lock()
	timers := r.timers
	r.timers = make(map[TimerHandle]*time.Timer)
	r.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}

// Len reports the number of timers still pending.
func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *TimerRegistry) remove(id TimerHandle) {
	r.mu.Lock()
	delete(r.timers, id)
	r.mu.Unlock()
}
