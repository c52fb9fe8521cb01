package session

import "time"

// Scheduler defers callbacks. AfterFunc returns a stop function that reports
// false if the callback already fired or was stopped. Callbacks run on the
// scheduler's goroutine; the session re-posts them to its dispatch queue behind
// a generation check.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// SystemScheduler is the wall-clock Scheduler backed by time.AfterFunc
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}
