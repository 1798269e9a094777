package locker

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// MapLocker holds one mutex per key, keys nobody waits on are released
type MapLocker struct {
	mu      sync.Mutex
	lockers map[string]*entry
}

func NewMapLocker() *MapLocker {
	return &MapLocker{
		lockers: make(map[string]*entry),
	}
}

func (ml *MapLocker) Lock(key string) {
	ml.mu.Lock()
	e, ok := ml.lockers[key]
	if !ok {
		e = &entry{}
		ml.lockers[key] = e
	}
	e.refs++
	ml.mu.Unlock()

	e.mu.Lock()
}

// Unlock panics when key is not locked
func (ml *MapLocker) Unlock(key string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	e, ok := ml.lockers[key]
	if !ok {
		panic("locker: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(ml.lockers, key)
	}
	e.mu.Unlock()
}

// Len returns the number of keys currently held or waited on
func (ml *MapLocker) Len() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return len(ml.lockers)
}
