package comm

import "sync"

// channelState tracks lifecycle and last-send health for a channel.
type channelState struct {
	mu      sync.Mutex
	started bool
	stopped bool
	lastErr error
}

func (s *channelState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.stopped = false
	s.lastErr = nil
}

func (s *channelState) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *channelState) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *channelState) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *channelState) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return StatusStopped
	case !s.started:
		return StatusDisconnected
	case s.lastErr != nil:
		return StatusError
	default:
		return StatusConnected
	}
}
