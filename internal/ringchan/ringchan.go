// Package ringchan provides a bounded channel whose producers never block.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded buffer with overwrite-oldest semantics. Producers
// never block: when the buffer is full the oldest element is discarded. The
// consumer side is an ordinary channel.
//
//	rc := ringchan.New[session.Event](64)
//	go func() {
//	    for ev := range rc.C() {
//	        render(ev)
//	    }
//	}()
//	rc.Send(ev) // from the session's dispatch goroutine
//
// Send after Close is dropped and counted in Stats().Dropped.
type RingChannel[T any] struct {
	ch chan T

	mu     sync.Mutex // serializes producers so drop-then-send is atomic
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	received    atomic.Int64
	dropped     atomic.Int64
}

// Stats is a snapshot of channel counters
type Stats struct {
	Written     int64
	Overwritten int64
	Received    int64 // only counts Receive/TryReceive; reads via C() bypass it
	Dropped     int64
}

// New creates a RingChannel holding up to capacity elements.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full. It
// reports whether an element was overwritten.
func (rc *RingChannel[T]) Send(v T) (overwrote bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		rc.dropped.Add(1)
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return overwrote
		default:
		}
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			overwrote = true
		default:
			// consumer drained it meanwhile; retry the send
		}
	}
}

// TrySend inserts v only if there is room.
func (rc *RingChannel[T]) TrySend(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		rc.dropped.Add(1)
		return false
	}
	select {
	case rc.ch <- v:
		rc.written.Add(1)
		return true
	default:
		return false
	}
}

// Receive blocks until a value is available; ok is false once closed and drained.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.received.Add(1)
	}
	return v, ok
}

// TryReceive returns immediately; ok is false when nothing is buffered.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.received.Add(1)
		}
		return v, ok
	default:
		return v, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the receive side. Calling it twice is safe.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Stats returns a snapshot of the counters.
func (rc *RingChannel[T]) Stats() Stats {
	return Stats{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Received:    rc.received.Load(),
		Dropped:     rc.dropped.Load(),
	}
}
