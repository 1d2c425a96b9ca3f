// Package keyedmutex serializes work per key, e.g. per destination directory.
//
// Entries are reference counted and dropped once the last holder unlocks,
// so the table only ever holds keys which are currently contended.
package keyedmutex

import "sync"

// Mutex is a set of mutexes indexed by key. The zero value is ready to use.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns the function releasing it.
func (k *Mutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited for
func (k *Mutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
