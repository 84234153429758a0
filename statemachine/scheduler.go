package statemachine

import (
	"slices"
	"sync"
	"time"
)

// Clock tells the scheduler what time it is.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Scheduler is the wait-then-invoke primitive behind delayed transitions.
// Schedule registers fn to run once after delay. Poll runs every callback
// that has come due, on the calling goroutine. The core calls Poll at the
// start of each Tick, so callbacks never race the tick loop. Scheduled
// callbacks cannot be cancelled.
type Scheduler interface {
	Schedule(delay time.Duration, fn func())
	Poll()
	Pending() int
}

type scheduledCall struct {
	due time.Time
	seq uint64
	fn  func()
}

// ClockScheduler is a Scheduler driven by a Clock. Callbacks run in due
// order; ties run in schedule order.
type ClockScheduler struct {
	mu      sync.Mutex
	clock   Clock
	seq     uint64
	pending []scheduledCall
}

// NewClockScheduler creates a scheduler reading clock. A nil clock uses RealClock.
func NewClockScheduler(clock Clock) *ClockScheduler {
	if clock == nil {
		clock = RealClock{}
	}

	return &ClockScheduler{clock: clock}
}

func (s *ClockScheduler) Schedule(delay time.Duration, fn func()) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	call := scheduledCall{due: s.clock.Now().Add(delay), seq: s.seq, fn: fn}

	i, _ := slices.BinarySearchFunc(s.pending, call, compareScheduled)
	s.pending = slices.Insert(s.pending, i, call)
}

func (s *ClockScheduler) Poll() {
	for {
		call, ok := s.popDue()
		if !ok {
			return
		}

		call.fn()
	}
}

func (s *ClockScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

func (s *ClockScheduler) popDue() (scheduledCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 || s.pending[0].due.After(s.clock.Now()) {
		return scheduledCall{}, false
	}

	call := s.pending[0]
	s.pending = slices.Delete(s.pending, 0, 1)

	return call, true
}

func compareScheduled(a, b scheduledCall) int {
	if c := a.due.Compare(b.due); c != 0 {
		return c
	}

	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}
