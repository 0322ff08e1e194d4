package engine

import "sync"

// sessionLocks serializes engine operations per session. Each session is a
// single-writer resource: the zone and pending-action invariants only hold
// when one mutation is in flight at a time.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{
		locks: make(map[int64]*sync.Mutex),
	}
}

// acquire locks the given session and returns the unlock function. Locks are
// kept for the lifetime of the process; the number of sessions a single
// process hosts is small.
func (l *sessionLocks) acquire(sessionID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
