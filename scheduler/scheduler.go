// Package scheduler arms the one-shot timer that ends a session when its credential
// expires.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler runs at most one pending callback at a time.
//
// Arm always disarms the previous timer first, so repeated logins never stack timers.
// A timer that fires after it was superseded by Arm or Disarm does not run its callback.
type Scheduler struct {
	clock Clock

	mu       sync.Mutex
	timer    Timer
	gen      uint64
	armed    bool
	deadline time.Time
}

// New returns a Scheduler. A nil clock uses the wall clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{clock: clock}
}

// Arm schedules onExpire to run once at expiresAt. Deadlines already in the past fire
// at the next opportunity.
func (s *Scheduler) Arm(expiresAt time.Time, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()

	delay := max(expiresAt.Sub(s.clock.Now()), 0)
	gen := s.gen
	s.armed = true
	s.deadline = expiresAt
	s.timer = s.clock.AfterFunc(delay, func() {
		s.fire(gen, onExpire)
	})
}

// Disarm cancels the pending timer, if any. It is safe to call repeatedly.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// Armed reports whether a callback is pending.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Deadline returns the instant the pending callback is due.
func (s *Scheduler) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.armed
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.armed = false
	s.deadline = time.Time{}
}

func (s *Scheduler) fire(gen uint64, onExpire func()) {
	s.mu.Lock()
	if gen != s.gen || !s.armed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.armed = false
	s.deadline = time.Time{}
	s.mu.Unlock()

	// Outside the lock: onExpire usually re-enters the owner, which may Arm again.
	onExpire()
}
