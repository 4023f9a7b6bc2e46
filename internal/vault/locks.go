package vault

import "sync"

// userLocks hands out one mutex per username. Upload's ledger append and
// reconciliation's whole-ledger replace are not atomic with respect to each
// other at the store, so both take the user's mutex first.
type userLocks struct {
	mu   sync.Mutex
	held map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{held: map[string]*sync.Mutex{}}
}

func (l *userLocks) get(username string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.held[username]
	if !ok {
		lock = &sync.Mutex{}
		l.held[username] = lock
	}
	return lock
}
