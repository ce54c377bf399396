package dispatch

import "sync"

// accountLocks serializes dispatch per monetary account. Two actions
// touching the same account must not race: both could read a stale
// balance before acting. Locks are created on first use and never
// freed; the account set is small and bounded per user.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for the given account key and returns the
// release function.
func (a *accountLocks) acquire(key string) func() {
	a.mu.Lock()
	lock, ok := a.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[key] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
