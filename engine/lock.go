package engine

import "sync"

// keyedMutex serializes runner steps per execution id. The lock is held
// only around one load-invoke-persist sequence, never across wait
// states.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*lockEntry),
	}
}

func (km *keyedMutex) Lock(key string) {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &lockEntry{}
		km.locks[key] = entry
	}
	entry.refs++
	km.mu.Unlock()
	entry.mu.Lock()
}

func (km *keyedMutex) Unlock(key string) {
	km.mu.Lock()
	entry := km.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()
	entry.mu.Unlock()
}
