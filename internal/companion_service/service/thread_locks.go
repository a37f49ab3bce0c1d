package service

import "sync"

// threadLocks serializes chat turns per thread id. Without it, two
// concurrent turns on one thread interleave their history reads and
// writes and can produce out-of-order context windows.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{
		locks: make(map[string]*threadLock),
	}
}

// Lock acquires the lock for threadID and returns its release function.
// Entries are reference counted and removed once the last holder releases,
// so the map does not grow with the number of threads ever seen.
func (t *threadLocks) Lock(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}
