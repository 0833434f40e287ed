package vault

import "sync"

// idLocks hands out one mutex per artifact ID. Entries are reference
// counted and removed once the last holder releases, so the registry does
// not grow with the number of artifacts ever seen.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[string]*idLock)}
}

func (l *idLocks) lock(id string) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &idLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *idLocks) unlock(id string) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		l.mu.Unlock()
		panic("vault: unlock of unheld artifact lock " + id)
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
