package bridge

import "sync"

// senderLocks hands out one mutex per sender and drops it once no caller holds or
// waits on it.
type senderLocks struct {
	mu    sync.Mutex
	locks map[string]*senderLock
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

func newSenderLocks() *senderLocks {
	return &senderLocks{locks: make(map[string]*senderLock)}
}

// lock blocks until the sender's mutex is held and returns its release func.
func (s *senderLocks) lock(sender string) func() {
	s.mu.Lock()
	l, ok := s.locks[sender]
	if !ok {
		l = &senderLock{}
		s.locks[sender] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sender)
		}
		s.mu.Unlock()
	}
}

func (s *senderLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
