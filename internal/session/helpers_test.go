package session

// drain runs queued work until the queue is empty and no tracked transport call
// is in flight. Callbacks from untracked goroutines (link watchers) may still
// arrive afterwards.
func (s *Session) drain() {
	for {
		s.inflight.Wait()
		if s.q.len() == 0 {
			return
		}
		s.dispatchPending()
	}
}
