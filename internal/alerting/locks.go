package alerting

import "sync"

// regionLocks hands out one mutex per region so create, raise and resolve on
// the same region are linearized while different regions proceed in parallel.
// Entries are dropped once no goroutine holds or waits on them.
type regionLocks struct {
	mu    sync.Mutex
	locks map[string]*regionLock
}

type regionLock struct {
	mu   sync.Mutex
	refs int
}

func newRegionLocks() *regionLocks {
	return &regionLocks{locks: make(map[string]*regionLock)}
}

func (l *regionLocks) lock(regionID string) func() {
	l.mu.Lock()
	rl, ok := l.locks[regionID]
	if !ok {
		rl = &regionLock{}
		l.locks[regionID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, regionID)
		}
		l.mu.Unlock()
	}
}

func (l *regionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
