package occupancy

import "sync"

// plateLocks hands out one mutex per plate. Entries are dropped once no
// goroutine holds or waits on them.
type plateLocks struct {
	mu sync.Mutex
	m  map[string]*plateLock
}

type plateLock struct {
	mu   sync.Mutex
	refs int
}

func newPlateLocks() *plateLocks {
	return &plateLocks{m: make(map[string]*plateLock)}
}

// lock blocks until key is free and returns the matching unlock func.
func (l *plateLocks) lock(key string) func() {
	l.mu.Lock()
	pl, ok := l.m[key]
	if !ok {
		pl = &plateLock{}
		l.m[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *plateLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
