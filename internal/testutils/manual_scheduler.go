package testutils

import (
	"sort"
	"sync"
	"time"
)

type manualTimer struct {
	id       int
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

// ManualScheduler is a virtual clock. Timers only fire when the test advances it,
// which makes timer-driven behavior deterministic.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

// NewManualScheduler creates a clock positioned at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the virtual time.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers fn to run once the clock has advanced by d.
func (m *ManualScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{id: m.seq, deadline: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)

	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves the clock forward by d and fires every due timer in deadline
// order. Callbacks run on the caller's goroutine. It returns the number fired.
func (m *ManualScheduler) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due []*manualTimer
	var rest []*manualTimer
	for _, t := range m.timers {
		switch {
		case t.stopped:
		case !t.deadline.After(m.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	m.timers = rest
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Pending returns the number of armed timers.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// NextDeadline returns how far the clock must advance for the next timer to fire.
func (m *ManualScheduler) NextDeadline() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next time.Time
	found := false
	for _, t := range m.timers {
		if t.stopped {
			continue
		}
		if !found || t.deadline.Before(next) {
			next, found = t.deadline, true
		}
	}
	if !found {
		return 0, false
	}
	return next.Sub(m.now), true
}
