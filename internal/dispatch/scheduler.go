package dispatch

import (
	"sync"
	"time"
)

// Scheduler delivers reply fragments with a fixed per-index stagger so
// multi-part replies arrive like someone typing consecutive messages.
// Pending deliveries are cancellable per conversation, which teardown
// uses when a surface goes away mid-reply.
type Scheduler struct {
	mu      sync.Mutex
	stagger time.Duration
	pending map[string][]*time.Timer
}

// NewScheduler creates a Scheduler with the given inter-fragment delay.
func NewScheduler(stagger time.Duration) *Scheduler {
	return &Scheduler{
		stagger: stagger,
		pending: make(map[string][]*time.Timer),
	}
}

// Deliver schedules every fragment for the conversation keyed by key.
// Fragment i fires after i times the stagger; index 0 still goes
// through the timer path so delivery order is uniform. Each timer drops
// its own handle once it fires, so pending holds live timers only.
func (s *Scheduler) Deliver(key string, fragments []Fragment, deliver func(Fragment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fragments {
		f := f
		var t *time.Timer
		t = time.AfterFunc(time.Duration(f.Index)*s.stagger, func() {
			deliver(f)
			s.mu.Lock()
			s.dropLocked(key, t)
			s.mu.Unlock()
		})
		s.pending[key] = append(s.pending[key], t)
	}
}

// After schedules a single callback for the conversation after d,
// cancellable the same way as fragment deliveries. The transfer
// auto-resolution timer runs through this.
func (s *Scheduler) After(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		fn()
		s.mu.Lock()
		s.dropLocked(key, t)
		s.mu.Unlock()
	})
	s.pending[key] = append(s.pending[key], t)
}

// dropLocked removes one fired timer handle. Callbacks read their t
// under the lock, which the scheduling goroutine held while assigning
// it, so the handle is always visible here.
func (s *Scheduler) dropLocked(key string, t *time.Timer) {
	timers := s.pending[key]
	for i, p := range timers {
		if p == t {
			s.pending[key] = append(timers[:i], timers[i+1:]...)
			break
		}
	}
	if len(s.pending[key]) == 0 {
		delete(s.pending, key)
	}
}

// Cancel stops every pending delivery for one conversation. Fragments
// already delivered are unaffected.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.pending[key] {
		t.Stop()
	}
	delete(s.pending, key)
}

// CancelAll stops every pending delivery. Used at shutdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timers := range s.pending {
		for _, t := range timers {
			t.Stop()
		}
		delete(s.pending, key)
	}
}
