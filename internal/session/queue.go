package session

import "sync"

// queue is the session's dispatch queue: an unbounded FIFO of closures. Producers
// (transport callbacks, timers, Start/Stop) never block; a single consumer runs
// the closures in order, which serializes every state mutation.
type queue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ready is signalled after a push; a consumer woken by it must pop until empty.
func (q *queue) ready() <-chan struct{} {
	return q.signal
}
